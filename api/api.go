/*
Package api is the HTTP boundary: the webhook the platform delivers updates
to, plus a small read-only JSON surface for the public website. Webhook
authentication happens before any parsing, and the webhook always acks once
authenticated so the platform stops redelivering.
*/
package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"hackabot/bot"
	"hackabot/config"
	"hackabot/db"
	"hackabot/stats"
	"hackabot/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	tb "gopkg.in/telebot.v3"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	recentPhotoWindow = 14 * 24 * time.Hour
	recentPhotoLimit  = 12
)

type Server struct {
	Db     *db.Database
	Bot    *bot.Bot
	Config *config.Config
}

// NewRouter builds the gin engine with the webhook and the read API
// mounted.
func (server *Server) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/webhook", server.requireSecret(), server.handleWebhook)

	public := router.Group("/api", corsMiddleware())
	{
		public.GET("/nodes", server.listNodes)
		public.GET("/nodes/:slug", server.getNode)
		public.GET("/photos/recent", server.recentPhotos)
		public.GET("/photos/:id/image", server.photoImage)
	}

	return router
}

// requireSecret rejects webhook posts whose shared-secret header does not
// match. Runs before any body parsing.
func (server *Server) requireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if server.Config.WebhookSecret == "" {
			c.Next()
			return
		}

		if c.GetHeader(secretTokenHeader) != server.Config.WebhookSecret {
			log.Warn().Msg("Webhook post with missing or wrong secret token")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false})
			return
		}

		c.Next()
	}
}

// handleWebhook decodes one update envelope and dispatches it. Once the
// body parses, the response is always an ack: handler failures are the
// bot's problem, and a non-200 would only trigger redelivery of an update
// we already consumed.
func (server *Server) handleWebhook(c *gin.Context) {
	var update tb.Update

	if err := c.ShouldBindJSON(&update); err != nil {
		log.Warn().Err(err).Msg("Webhook post with unparseable body")
		c.JSON(http.StatusBadRequest, gin.H{"ok": false})
		return
	}

	server.Bot.HandleUpdate(&update)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type personView struct {
	Name      string `json:"name"`
	Username  string `json:"username,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Attending bool   `json:"attending"`
}

type nodeView struct {
	Slug          string       `json:"slug"`
	Name          string       `json:"name"`
	Emoji         string       `json:"emoji,omitempty"`
	Location      string       `json:"location,omitempty"`
	Established   int          `json:"established,omitempty"`
	SignupUrl     string       `json:"signup_url,omitempty"`
	EventDay      int          `json:"event_day"`
	Attending     int          `json:"attending"`
	ActivityLevel int          `json:"activity_level"`
	People        []personView `json:"people"`
}

type photoView struct {
	Id      uint      `json:"id"`
	Node    string    `json:"node"`
	Created time.Time `json:"created"`
	Url     string    `json:"url"`
}

func (server *Server) nodeToView(node *db.Node, now time.Time) nodeView {
	view := nodeView{
		Slug:          node.Slug(),
		Name:          node.Name,
		Emoji:         node.Emoji,
		Location:      node.Location,
		Established:   node.Established,
		SignupUrl:     node.SignupUrl,
		EventDay:      node.EventDay,
		Attending:     stats.AttendingCount(server.Db, node, now),
		ActivityLevel: stats.NodeActivityLevel(server.Db, node, now),
		People:        []personView{},
	}

	if node.GroupId == nil {
		return view
	}

	people, err := server.Db.PublicPeopleInGroup(*node.GroupId)

	if err != nil {
		return view
	}

	attending := stats.AttendingPersonIds(server.Db, node, now)

	for _, person := range people {
		view.People = append(view.People, personView{
			Name:      utils.SanitizeForHtml(person.FirstName),
			Username:  person.UsernameX,
			Bio:       utils.SanitizeForHtml(person.Bio),
			Attending: attending[person.Id],
		})
	}

	// Attending people lead, keeping the name order within each half
	sort.SliceStable(view.People, func(i, j int) bool {
		return view.People[i].Attending && !view.People[j].Attending
	})

	return view
}

func (server *Server) listNodes(c *gin.Context) {
	nodes, err := server.Db.AllNodes()

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	now := time.Now().UTC()
	views := []nodeView{}
	groupIds := []uint{}

	for i := range nodes {
		if nodes[i].Disabled {
			continue
		}

		views = append(views, server.nodeToView(&nodes[i], now))

		if nodes[i].GroupId != nil {
			groupIds = append(groupIds, *nodes[i].GroupId)
		}
	}

	peopleCount, _ := server.Db.CountPeopleInGroups(groupIds)

	c.JSON(http.StatusOK, gin.H{
		"nodes":        views,
		"people_count": peopleCount,
	})
}

func (server *Server) getNode(c *gin.Context) {
	node, err := server.Db.FindNodeBySlug(c.Param("slug"))

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if node == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
		return
	}

	now := time.Now().UTC()
	view := server.nodeToView(node, now)

	photos, err := server.Db.RecentPhotos(&node.Id, now.Add(-recentPhotoWindow), recentPhotoLimit)

	if err != nil {
		photos = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"node":   view,
		"photos": photoViews(photos, node.Slug()),
	})
}

func (server *Server) recentPhotos(c *gin.Context) {
	now := time.Now().UTC()
	photos, err := server.Db.RecentPhotos(nil, now.Add(-recentPhotoWindow), recentPhotoLimit)

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	views := []photoView{}

	for _, photo := range photos {
		node, err := server.Db.FindNode(photo.NodeId)
		slug := ""

		if err == nil && node != nil {
			slug = node.Slug()
		}

		views = append(views, photoView{
			Id:      photo.Id,
			Node:    slug,
			Created: photo.Created,
			Url:     "/api/photos/" + strconv.FormatUint(uint64(photo.Id), 10) + "/image",
		})
	}

	c.JSON(http.StatusOK, gin.H{"photos": views})
}

func (server *Server) photoImage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)

	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := server.Db.FindPhoto(uint(id))

	if err != nil || photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	// Photos are immutable once ingested
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", photo.ImageData)
}

func photoViews(photos []db.MeetupPhoto, slug string) []photoView {
	views := []photoView{}

	for _, photo := range photos {
		views = append(views, photoView{
			Id:      photo.Id,
			Node:    slug,
			Created: photo.Created,
			Url:     "/api/photos/" + strconv.FormatUint(uint64(photo.Id), 10) + "/image",
		})
	}

	return views
}
