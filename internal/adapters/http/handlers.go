package http

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/domain"
	"github.com/mkoval/parley/internal/hub"
	"github.com/mkoval/parley/internal/store"
)

type API struct {
	Store    *store.Store
	Registry *hub.Registry
	Fanout   *hub.Fanout
}

type loginRequest struct {
	Name string `json:"name" binding:"required"`
}

func (a *API) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	user, err := a.Store.FindOrCreateUser(req.Name)
	if err != nil {
		if errors.Is(err, domain.ErrNameEmpty) || errors.Is(err, domain.ErrNameTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	sess := sessions.Default(c)
	sess.Set("uid", string(user.ID))
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	user.Online = a.Registry.Online(user.ID)
	c.JSON(http.StatusOK, user)
}

func (a *API) searchUsers(c *gin.Context) {
	users := a.Store.SearchUsers(c.Query("q"))
	online := a.Registry.OnlineSet()
	for _, u := range users {
		_, u.Online = online[u.ID]
	}
	c.JSON(http.StatusOK, users)
}

// chatSummary is the sidebar view of a conversation: members with live
// presence and the newest message.
type chatSummary struct {
	ID          domain.ConversationID `json:"id"`
	Users       []*domain.User        `json:"users"`
	LastMessage *domain.Message       `json:"lastMessage,omitempty"`
}

func (a *API) listChats(c *gin.Context) {
	uid := domain.UserID(c.Query("userId"))
	if uid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId query parameter required"})
		return
	}
	convs := a.Store.ConversationsOf(uid)
	online := a.Registry.OnlineSet()
	out := make([]chatSummary, 0, len(convs))
	for _, conv := range convs {
		summary := chatSummary{ID: conv.ID}
		for _, mid := range conv.Members {
			if u, ok := a.Store.GetUser(mid); ok {
				_, u.Online = online[u.ID]
				summary.Users = append(summary.Users, u)
			}
		}
		if last, ok := a.Store.LastMessage(conv.ID); ok {
			summary.LastMessage = last
		}
		out = append(out, summary)
	}
	// Newest activity first; empty chats go last.
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := out[i].LastMessage, out[j].LastMessage
		switch {
		case li == nil:
			return false
		case lj == nil:
			return true
		default:
			return li.CreatedAt.After(lj.CreatedAt)
		}
	})
	c.JSON(http.StatusOK, out)
}

type createChatRequest struct {
	UserID    string `json:"userId" binding:"required"`
	PartnerID string `json:"partnerId" binding:"required"`
}

func (a *API) createChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
		return
	}
	conv, err := a.Store.FindOrCreateConversation(domain.UserID(req.UserID), domain.UserID(req.PartnerID))
	if err != nil {
		if errors.Is(err, store.ErrUnknownUser) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, store.ErrSelfConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("create chat")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create chat failed"})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (a *API) listMessages(c *gin.Context) {
	id := domain.ConversationID(c.Param("chatId"))
	c.JSON(http.StatusOK, a.Store.Messages(id))
}

type createMessageRequest struct {
	ChatID   string `json:"chatId" binding:"required"`
	SenderID string `json:"senderId" binding:"required"`
	Text     string `json:"text"`
	Audio    string `json:"audio"`
}

// createMessage persists the message and fans it out to the recipient's live
// session through the store's notify hook, so concurrent posts to the same
// conversation push in append order. Fan-out is best-effort: a push failure
// never loses the message or fails the request.
func (a *API) createMessage(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
		return
	}
	msg, err := domain.NewMessage(
		domain.ConversationID(req.ChatID),
		domain.UserID(req.SenderID),
		req.Text, req.Audio,
	)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.Store.AppendMessage(msg, a.Fanout.Deliver); err != nil {
		switch {
		case errors.Is(err, store.ErrUnknownConversation):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrNotMember):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			log.Error().Err(err).Str("module", "adapters.http").Msg("append message")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store message failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, msg)
}
