package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/membergate/membergate/internal/pkg/config"
)

// Client talks to the Telegram Bot API. It implements the membership
// directory capability (remove members, create invite links) and the
// notifier capability (direct messages).
type Client struct {
	Token      string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewClientFromConfig builds a client from the startup configuration.
func NewClientFromConfig(cfg *config.Config) *Client {
	return &Client{
		Token:      cfg.BotToken,
		APIBaseURL: cfg.TelegramAPIBaseURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// RemoveMember kicks a member out of a group. The ban is lifted immediately
// afterwards so the user can be re-invited once they renew; a failure to
// unban is logged upstream but the removal itself still counts.
func (c *Client) RemoveMember(ctx context.Context, groupID, memberID int64) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(groupID, 10))
	params.Set("user_id", strconv.FormatInt(memberID, 10))

	if err := c.call(ctx, "banChatMember", params, nil); err != nil {
		return fmt.Errorf("ban member %d in group %d: %w", memberID, groupID, err)
	}

	unban := url.Values{}
	unban.Set("chat_id", strconv.FormatInt(groupID, 10))
	unban.Set("user_id", strconv.FormatInt(memberID, 10))
	unban.Set("only_if_banned", "true")
	if err := c.call(ctx, "unbanChatMember", unban, nil); err != nil {
		return fmt.Errorf("unban member %d in group %d after removal: %w", memberID, groupID, err)
	}
	return nil
}

// CreateInvite creates a single-use style invite link for a group.
func (c *Client) CreateInvite(ctx context.Context, groupID int64, ttl time.Duration, maxUses int) (string, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(groupID, 10))
	if ttl > 0 {
		params.Set("expire_date", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
	}
	if maxUses > 0 {
		params.Set("member_limit", strconv.Itoa(maxUses))
	}

	var out struct {
		InviteLink string `json:"invite_link"`
	}
	if err := c.call(ctx, "createChatInviteLink", params, &out); err != nil {
		return "", fmt.Errorf("create invite for group %d: %w", groupID, err)
	}
	if strings.TrimSpace(out.InviteLink) == "" {
		return "", fmt.Errorf("create invite for group %d: empty invite_link in response", groupID)
	}
	return out.InviteLink, nil
}

// SendDirectMessage delivers a direct message to a member.
func (c *Client) SendDirectMessage(ctx context.Context, memberID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(memberID, 10))
	params.Set("text", text)

	if err := c.call(ctx, "sendMessage", params, nil); err != nil {
		return fmt.Errorf("send message to member %d: %w", memberID, err)
	}
	return nil
}

// call posts one Bot API method and decodes the standard envelope. out may
// be nil when the result payload is not needed.
func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	if strings.TrimSpace(c.Token) == "" {
		return errors.New("BOT_TOKEN is not configured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(c.APIBaseURL, "/"), c.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s failed: status=%d body=%s", method, resp.StatusCode, string(body))
	}
	if !envelope.OK {
		return fmt.Errorf("%s failed: %s", method, envelope.Description)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}
