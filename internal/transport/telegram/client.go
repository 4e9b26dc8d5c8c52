// Package telegram implements transport.Sender and an update poller on top
// of the Telegram Bot HTTP API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/ashureev/intake-bot/internal/transport"
)

const (
	// DefaultAPIURL is the public Bot API endpoint.
	DefaultAPIURL = "https://api.telegram.org"
	// DefaultSendRate is the global outbound message rate per second.
	DefaultSendRate = 25
	// maxMessageRunes is the Bot API limit for one text message.
	maxMessageRunes = 4096
)

// Client calls the Bot API. It is safe for concurrent use.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL points the client at another Bot API server.
func WithAPIURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithSendRate limits outbound messages to perSecond. Zero disables limiting.
func WithSendRate(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient creates a Bot API client.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultAPIURL,
		http:    &http.Client{Timeout: 90 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(DefaultSendRate), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call posts body to method and decodes the result into out.
func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader, recipient string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL carries the token; never surface it.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return &transport.SendError{Recipient: recipient, Err: fmt.Errorf("%s: %w", method, err)}
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &transport.SendError{
			Recipient: recipient,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("%s: decode response: %w", method, err),
		}
	}
	if !envelope.OK {
		status := envelope.ErrorCode
		if status == 0 {
			status = resp.StatusCode
		}
		sendErr := &transport.SendError{
			Recipient: recipient,
			Status:    status,
			Err:       fmt.Errorf("%s: %s", method, envelope.Description),
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			sendErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return sendErr
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) callJSON(ctx context.Context, method string, payload any, recipient string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", method, err)
	}
	return c.call(ctx, method, "application/json", bytes.NewReader(body), recipient, out)
}

type keyboardButton struct {
	Text string `json:"text"`
}

type replyMarkup struct {
	Keyboard       [][]keyboardButton `json:"keyboard,omitempty"`
	ResizeKeyboard bool               `json:"resize_keyboard,omitempty"`
	RemoveKeyboard bool               `json:"remove_keyboard,omitempty"`
}

type sendMessageRequest struct {
	ChatID      string       `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode,omitempty"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

func markupFor(msg transport.Message) *replyMarkup {
	switch {
	case len(msg.Buttons) > 0:
		rows := make([][]keyboardButton, 0, len(msg.Buttons))
		for _, row := range msg.Buttons {
			buttons := make([]keyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, keyboardButton{Text: label})
			}
			rows = append(rows, buttons)
		}
		return &replyMarkup{Keyboard: rows, ResizeKeyboard: true}
	case msg.RemoveKeyboard:
		return &replyMarkup{RemoveKeyboard: true}
	default:
		return nil
	}
}

// Send implements transport.Sender. Long texts are split on line breaks;
// the keyboard is attached to the last part.
func (c *Client) Send(ctx context.Context, to string, msg transport.Message) error {
	parts := splitText(msg.Text, maxMessageRunes, msg.HTML)
	for i, part := range parts {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		req := sendMessageRequest{ChatID: to, Text: part}
		if msg.HTML {
			req.ParseMode = "HTML"
		}
		if i == len(parts)-1 {
			req.ReplyMarkup = markupFor(msg)
		}
		if err := c.callJSON(ctx, "sendMessage", req, to, nil); err != nil {
			return err
		}
	}
	return nil
}

// SendDocument implements transport.Sender.
func (c *Client) SendDocument(ctx context.Context, to string, doc transport.Document) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", to); err != nil {
		return err
	}
	if doc.Caption != "" {
		if err := w.WriteField("caption", doc.Caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("document", doc.Name)
	if err != nil {
		return err
	}
	if _, err := part.Write(doc.Content); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.call(ctx, "sendDocument", w.FormDataContentType(), &buf, to, nil)
}

// BotUser describes the bot account.
type BotUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// GetMe checks the token and returns the bot account.
func (c *Client) GetMe(ctx context.Context) (BotUser, error) {
	var me BotUser
	err := c.callJSON(ctx, "getMe", struct{}{}, "", &me)
	return me, err
}

// maxEntityRunes bounds an HTML character reference such as &quot;.
const maxEntityRunes = 10

// entityBoundary moves a cut at limit back to the start of a character
// reference that would otherwise straddle it.
func entityBoundary(r []rune, limit int) int {
	for i := limit - 1; i > 0 && i >= limit-maxEntityRunes; i-- {
		switch r[i] {
		case ';':
			return limit
		case '&':
			return i
		}
	}
	return limit
}

// splitText cuts text into chunks of at most limit runes, preferring line
// boundaries.
func splitText(text string, limit int, html bool) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var (
		parts   []string
		current strings.Builder
		runes   int
	)
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
			runes = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if runes+n > limit {
			flush()
		}
		for n > limit {
			r := []rune(line)
			cut := limit
			if html {
				cut = entityBoundary(r, limit)
			}
			parts = append(parts, string(r[:cut]))
			line = string(r[cut:])
			n -= cut
		}
		current.WriteString(line)
		runes += n
	}
	flush()
	return parts
}

var _ transport.Sender = (*Client)(nil)
