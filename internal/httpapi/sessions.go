package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"termfolio/internal/auth"
	"termfolio/internal/interpreter"
	"termfolio/internal/session"
	"termfolio/internal/shell"
	"termfolio/internal/theme"
)

const (
	visitorCookie    = "termfolio_visitor"
	visitorCookieTTL = 365 * 24 * time.Hour
	// Browser preferences are stored apart from SSH observer hashes.
	visitorKeyPrefix = "web:"

	eventStateChanged = "state_changed"
)

// sessionView is the state a browser needs after every interaction.
type sessionView struct {
	ID         string               `json:"id,omitempty"`
	Lines      []session.Line       `json:"lines"`
	Cleared    bool                 `json:"cleared"`
	Navigate   string               `json:"navigate,omitempty"`
	Effects    []interpreter.Effect `json:"effects"`
	Prompt     string               `json:"prompt"`
	Masked     bool                 `json:"masked"`
	Theme      theme.Variant        `json:"theme"`
	Sound      bool                 `json:"sound"`
	Fullscreen bool                 `json:"fullscreen"`
	LoginState auth.LoginState      `json:"login_state"`
	Event      string               `json:"event,omitempty"`
}

func viewOf(sh *shell.Session, reply shell.Reply) sessionView {
	st := sh.State()
	v := sessionView{
		Lines:      reply.Lines,
		Cleared:    reply.Cleared,
		Navigate:   reply.Section,
		Effects:    reply.Effects,
		Prompt:     sh.Prompt(),
		Masked:     sh.Masked(),
		Theme:      st.Theme(),
		Sound:      st.SoundEnabled(),
		Fullscreen: st.Fullscreen(),
		LoginState: sh.Flow().State(),
	}
	if v.Lines == nil {
		v.Lines = []session.Line{}
	}
	if v.Effects == nil {
		v.Effects = []interpreter.Effect{}
	}
	return v
}

// run submits one line and finishes any remote work before answering.
func run(ctx context.Context, sh *shell.Session, line string) sessionView {
	reply := sh.Submit(ctx, line)
	if reply.Pending != nil {
		reply.Lines = append(reply.Lines, reply.Pending.Run(ctx)...)
		reply.Pending = nil
	}
	return viewOf(sh, reply)
}

func (a *API) openSession(c *gin.Context) {
	visitor := visitorID(c)
	sh := a.shells.New(c.Request.Context(), visitorKeyPrefix+visitor, nil)
	id, err := a.registry.Add(sh)
	if err != nil {
		logRejection(c, "open_session", "registry_full", err.Error())
		writeErr(c, http.StatusServiceUnavailable, "TOO_MANY_SESSIONS", "too many open sessions, try again later")
		return
	}
	a.logger.Info("web session opened", "event", "web_session_opened", "session", id, "sessions", a.registry.Len())

	v := viewOf(sh, shell.Reply{})
	v.ID = id
	c.JSON(http.StatusCreated, v)
}

// visitorID returns the visitor cookie, issuing a new one when it is
// missing or malformed.
func visitorID(c *gin.Context) string {
	if v, err := c.Cookie(visitorCookie); err == nil {
		if _, err := uuid.Parse(v); err == nil {
			return v
		}
	}
	v := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(visitorCookie, v, int(visitorCookieTTL.Seconds()), "/", "", false, true)
	return v
}

func (a *API) closeSession(c *gin.Context) {
	id, ok := sessionID(c, "close_session")
	if !ok {
		return
	}
	if !a.registry.Delete(id) {
		logRejection(c, "close_session", "session_not_found", id)
		writeErr(c, http.StatusNotFound, "SESSION_NOT_FOUND", "session could not be found or already closed")
		return
	}
	c.Status(http.StatusNoContent)
}

type execRequest struct {
	Line string `json:"line"`
}

func (a *API) execLine(c *gin.Context) {
	sh, ok := a.lookup(c, "exec")
	if !ok {
		return
	}
	var req execRequest
	if err := decodeJSONBody(c, maxExecBodyBytes, &req); err != nil {
		logRejection(c, "exec", "bad_json", err.Error())
		return
	}
	c.JSON(http.StatusOK, run(c.Request.Context(), sh, req.Line))
}

func (a *API) complete(c *gin.Context) {
	sh, ok := a.lookup(c, "complete")
	if !ok {
		return
	}
	q := c.Query("q")
	candidates := sh.Complete(q)
	completion := q
	switch len(candidates) {
	case 0:
		candidates = []string{}
	case 1:
		completion = candidates[0]
	default:
		completion = interpreter.LongestCommonPrefix(candidates)
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates, "completion": completion})
}

func (a *API) history(c *gin.Context) {
	sh, ok := a.lookup(c, "history")
	if !ok {
		return
	}
	var dir session.Direction
	switch c.Query("direction") {
	case "up":
		dir = session.Up
	case "down":
		dir = session.Down
	default:
		logRejection(c, "history", "bad_direction", c.Query("direction"))
		writeErr(c, http.StatusBadRequest, "INVALID_REQUEST", "direction must be up or down")
		return
	}
	cmd, ok := sh.NavigateHistory(dir)
	if !ok {
		writeErr(c, http.StatusConflict, "LOGIN_IN_PROGRESS", "history is unavailable while logging in")
		return
	}
	c.JSON(http.StatusOK, gin.H{"command": cmd, "index": sh.State().HistoryIndex()})
}

func (a *API) cancelLogin(c *gin.Context) {
	sh, ok := a.lookup(c, "cancel")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(sh, shell.Reply{Lines: sh.Cancel()}))
}

// sessionSocket runs the exec loop over a websocket: each {"line": ...}
// frame is answered with one session view. Theme and identity changes made
// elsewhere (another request on the same session, a finished login) are
// pushed as a view with event "state_changed".
func (a *API) sessionSocket(c *gin.Context) {
	id, ok := sessionID(c, "socket")
	if !ok {
		return
	}
	sh, ok := a.registry.Get(id)
	if !ok {
		logRejection(c, "socket", "session_not_found", id)
		writeErr(c, http.StatusNotFound, "SESSION_NOT_FOUND", "session could not be found or already closed")
		return
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "event", "ws_upgrade_failed", "session", id, "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxExecBodyBytes)

	changed := make(chan struct{}, 1)
	markChanged := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	unsubTheme := sh.State().OnThemeChange(func(theme.Variant) { markChanged() })
	defer unsubTheme()
	unsubIdentity := sh.Flow().OnIdentityChange(func(*auth.Identity) { markChanged() })
	defer unsubIdentity()

	done := make(chan struct{})
	defer close(done)
	frames := make(chan execRequest)
	readErr := make(chan error, 1)
	go func() {
		for {
			var req execRequest
			if err := conn.ReadJSON(&req); err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- req:
			case <-done:
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Warn("websocket read failed", "event", "ws_read_failed", "session", id, "err", err)
			}
			return
		case <-changed:
			v := viewOf(sh, shell.Reply{})
			v.Event = eventStateChanged
			if err := conn.WriteJSON(v); err != nil {
				return
			}
		case req := <-frames:
			if !a.allowSession(c.ClientIP()) {
				if err := conn.WriteJSON(gin.H{"code": "RATE_LIMITED", "message": "too many requests", "status": "429"}); err != nil {
					return
				}
				continue
			}
			// Each frame counts as activity for the idle sweep.
			current, ok := a.registry.Get(id)
			if !ok || current != sh {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session expired"))
				return
			}
			if err := conn.WriteJSON(run(ctx, sh, req.Line)); err != nil {
				return
			}
			// The reply already carries changes this frame made.
			select {
			case <-changed:
			default:
			}
		}
	}
}

func (a *API) lookup(c *gin.Context, op string) (*shell.Session, bool) {
	id, ok := sessionID(c, op)
	if !ok {
		return nil, false
	}
	sh, ok := a.registry.Get(id)
	if !ok {
		logRejection(c, op, "session_not_found", id)
		writeErr(c, http.StatusNotFound, "SESSION_NOT_FOUND", "session could not be found or already closed")
		return nil, false
	}
	return sh, true
}

func sessionID(c *gin.Context, op string) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		logRejection(c, op, "invalid_session_id", id)
		writeErr(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid session id format")
		return "", false
	}
	return id, true
}
