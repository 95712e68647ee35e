package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleCalendarConfig holds the OAuth2 configuration for the read-only
// Google Calendar feed. Events from a linked Google calendar can be surfaced
// as busy slots alongside the service's own events.
type GoogleCalendarConfig struct {
	Config *oauth2.Config
}

// InitGoogleCalendarConfig builds the OAuth2 config from the environment;
// nil when the integration is not configured.
func InitGoogleCalendarConfig() *GoogleCalendarConfig {
	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	redirectURL := os.Getenv("GOOGLE_REDIRECT_URL")

	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}

	return &GoogleCalendarConfig{Config: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes: []string{
			calendar.CalendarReadonlyScope,
		},
		Endpoint: google.Endpoint,
	}}
}

// GET /api/v1/calendar/auth — starts the OAuth2 flow.
func (a *App) GoogleAuthHandler(c *gin.Context) {
	cfg := InitGoogleCalendarConfig()
	if cfg == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}

	state := fmt.Sprintf("user_%s_%d", c.Query("user_id"), time.Now().Unix())
	url := cfg.Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	c.JSON(http.StatusOK, gin.H{
		"auth_url": url,
		"state":    state,
	})
}

// GET /oauth2callback — completes the OAuth2 flow.
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	cfg := InitGoogleCalendarConfig()
	if cfg == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization code required"})
		return
	}

	token, err := cfg.Config.Exchange(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to exchange code for token"})
		return
	}

	// TODO: persist the token per user once account linking lands; for now
	// the caller holds it and passes it back via X-Google-Token.
	tokenJSON, _ := json.Marshal(token)
	c.JSON(http.StatusOK, gin.H{
		"message": "Authorization successful",
		"state":   state,
		"token":   string(tokenJSON),
	})
}

// GET /api/v1/calendar/busy?user_id=N&from=ISO&to=ISO
// Converts the linked Google calendar's events in the window into busy
// slots, so externally-synced calendars feed the same availability shape.
func (a *App) GoogleBusyHandler(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}
	if !from.Before(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}

	tokenStr := c.GetHeader("X-Google-Token")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Google token required in X-Google-Token header"})
		return
	}
	var token oauth2.Token
	if err := json.Unmarshal([]byte(tokenStr), &token); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token format"})
		return
	}

	cfg := InitGoogleCalendarConfig()
	if cfg == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google Calendar not configured"})
		return
	}

	slots, err := fetchGoogleBusySlots(c.Request.Context(), cfg, &token, userID, from.UTC(), to.UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"busy_slots": emptyIfNilSlots(slots)})
}

func fetchGoogleBusySlots(ctx context.Context, cfg *GoogleCalendarConfig, token *oauth2.Token, userID int64, from, to time.Time) ([]BusySlot, error) {
	client := cfg.Config.Client(ctx, token)
	srv, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	// SingleEvents expands Google's own recurrences server-side, so every
	// item maps to one busy slot.
	events, err := srv.Events.List("primary").
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		MaxResults(250).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	var slots []BusySlot
	for _, item := range events.Items {
		if item.Status == "cancelled" || item.Start == nil || item.End == nil {
			continue
		}
		start, end, ok := googleEventTimes(item)
		if !ok {
			continue
		}
		slots = append(slots, BusySlot{
			UserID:              userID,
			StartTime:           start.UTC(),
			EndTime:             end.UTC(),
			EventTitle:          item.Summary,
			IsRecurringInstance: item.RecurringEventId != "",
		})
	}
	return slots, nil
}

func googleEventTimes(item *calendar.Event) (start, end time.Time, ok bool) {
	var err error
	switch {
	case item.Start.DateTime != "":
		start, err = time.Parse(time.RFC3339, item.Start.DateTime)
	case item.Start.Date != "":
		start, err = time.Parse("2006-01-02", item.Start.Date)
	default:
		return start, end, false
	}
	if err != nil {
		return start, end, false
	}
	switch {
	case item.End.DateTime != "":
		end, err = time.Parse(time.RFC3339, item.End.DateTime)
	case item.End.Date != "":
		end, err = time.Parse("2006-01-02", item.End.Date)
	default:
		return start, end, false
	}
	if err != nil || !start.Before(end) {
		return start, end, false
	}
	return start, end, true
}
