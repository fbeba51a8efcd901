package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kylegalloway/trellm/internal/config"
	"github.com/kylegalloway/trellm/internal/tasks"
)

const (
	// DefaultBaseURL is the Trello REST API root.
	DefaultBaseURL = "https://api.trello.com/1"
	// ReadyListName is looked up on the board when no ready list id is configured.
	ReadyListName = "READY TO TRY"

	requestTimeout = 30 * time.Second
)

// HTTPError is a non-2xx response from the API.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("trello %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Trello implements Board against the Trello REST API.
type Trello struct {
	BaseURL string
	HTTP    *http.Client

	key, token  string
	boardID     string
	todoListID  string
	doneBoardID string
	doneListID  string

	mu          sync.Mutex
	readyListID string

	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewTrello creates a client from the board section of the config.
// Requests are limited to Trello's documented 100 per 10 seconds per token.
func NewTrello(cfg config.BoardConfig, logger *zap.Logger) *Trello {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trello{
		BaseURL:     DefaultBaseURL,
		HTTP:        &http.Client{Timeout: requestTimeout},
		key:         cfg.APIKey,
		token:       cfg.APIToken,
		boardID:     cfg.BoardID,
		todoListID:  cfg.TodoListID,
		readyListID: cfg.ReadyListID,
		doneBoardID: cfg.DoneBoardID,
		doneListID:  cfg.DoneListID,
		limiter:     rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		logger:      logger.Named("trello"),
	}
}

type card struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Desc             string `json:"desc"`
	URL              string `json:"url"`
	DateLastActivity string `json:"dateLastActivity"`
}

func (c card) task() tasks.Task {
	return tasks.Task{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Desc,
		URL:          c.URL,
		LastActivity: tasks.ParseActivity(c.DateLastActivity),
	}
}

// TodoTasks returns the cards in the todo list.
func (t *Trello) TodoTasks(ctx context.Context) ([]tasks.Task, error) {
	var cards []card
	if err := t.do(ctx, http.MethodGet, "/lists/"+t.todoListID+"/cards", nil, nil, &cards); err != nil {
		return nil, err
	}
	out := make([]tasks.Task, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.task())
	}
	return out, nil
}

// MoveToReady moves a card to the done board/list when both are configured,
// otherwise to the ready list on the same board, discovering it by name if
// needed.
func (t *Trello) MoveToReady(ctx context.Context, taskID string) error {
	if t.doneBoardID != "" && t.doneListID != "" {
		body := map[string]string{"idList": t.doneListID, "idBoard": t.doneBoardID}
		if err := t.do(ctx, http.MethodPut, "/cards/"+taskID, nil, body, nil); err != nil {
			return err
		}
		t.logger.Info("moved card to done list",
			zap.String("task", taskID),
			zap.String("board", t.doneBoardID),
			zap.String("list", t.doneListID),
		)
		return nil
	}

	listID, err := t.readyList(ctx)
	if err != nil {
		return err
	}
	if listID == "" {
		return fmt.Errorf("trello: no %q list on board %s", ReadyListName, t.boardID)
	}
	if err := t.do(ctx, http.MethodPut, "/cards/"+taskID, nil, map[string]string{"idList": listID}, nil); err != nil {
		return err
	}
	t.logger.Info("moved card to ready list", zap.String("task", taskID))
	return nil
}

func (t *Trello) readyList(ctx context.Context) (string, error) {
	t.mu.Lock()
	id := t.readyListID
	t.mu.Unlock()
	if id != "" {
		return id, nil
	}

	var lists []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := t.do(ctx, http.MethodGet, "/boards/"+t.boardID+"/lists", nil, nil, &lists); err != nil {
		return "", err
	}
	for _, l := range lists {
		if l.Name == ReadyListName {
			t.mu.Lock()
			t.readyListID = l.ID
			t.mu.Unlock()
			return l.ID, nil
		}
	}
	return "", nil
}

// AddComment posts a comment on a card.
func (t *Trello) AddComment(ctx context.Context, taskID, text string) error {
	q := url.Values{"text": {text}}
	if err := t.do(ctx, http.MethodPost, "/cards/"+taskID+"/actions/comments", q, nil, nil); err != nil {
		return err
	}
	t.logger.Debug("added comment", zap.String("task", taskID))
	return nil
}

func (t *Trello) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("key", t.key)
	query.Set("token", t.token)
	u := strings.TrimRight(t.BaseURL, "/") + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, withoutURL(err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("trello %s %s: %w", method, path, withoutURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// withoutURL drops the request URL from err. The URL carries the API key
// and token in its query.
func withoutURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
