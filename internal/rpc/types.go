package rpc

import (
	"github.com/matheus3301/qchat/internal/chart"
	"github.com/matheus3301/qchat/internal/store"
)

type OpenTabRequest struct {
	Name string `json:"name,omitempty"`
}

type OpenTabResponse struct {
	Tab string `json:"tab"`
}

type CloseTabRequest struct {
	Tab string `json:"tab"`
}

type CloseTabResponse struct{}

type GetStatusRequest struct {
	Tab string `json:"tab"`
}

// Status describes one tab and its daemon.
type Status struct {
	Profile  string          `json:"profile"`
	Tab      string          `json:"tab"`
	State    string          `json:"state"`
	Identity *store.Identity `json:"identity,omitempty"`
	Unread   int             `json:"unread"`
	Focused  bool            `json:"focused"`
	Title    string          `json:"title"`
	Messages int             `json:"messages"`
	UptimeMS int64           `json:"uptimeMs"`
	Tabs     []string        `json:"tabs"`
}

type SendCodeRequest struct {
	Tab         string `json:"tab"`
	CountryCode string `json:"countryCode,omitempty"`
	Phone       string `json:"phone"`
	Name        string `json:"name,omitempty"`
}

// SendCodeResponse carries the code itself only for the local verifier.
type SendCodeResponse struct {
	Phone       string `json:"phone"`
	Provider    string `json:"provider"`
	Code        string `json:"code,omitempty"`
	ExpiresAtMS int64  `json:"expiresAtMs,omitempty"`
}

type VerifyRequest struct {
	Tab  string `json:"tab"`
	Code string `json:"code"`
}

type VerifyResponse struct {
	Identity store.Identity `json:"identity"`
}

// CancelLoginRequest abandons a pending code so a different phone can be entered.
type CancelLoginRequest struct {
	Tab string `json:"tab"`
}

type CancelLoginResponse struct{}

type LogoutRequest struct {
	Tab string `json:"tab"`
}

type LogoutResponse struct{}

type SetFocusRequest struct {
	Tab     string `json:"tab"`
	Focused bool   `json:"focused"`
}

type SetFocusResponse struct {
	Unread int    `json:"unread"`
	Title  string `json:"title"`
}

type ListPresenceRequest struct {
	Tab string `json:"tab"`
}

type ListPresenceResponse struct {
	Entries []store.PresenceEntry `json:"entries"`
}

type WatchEventsRequest struct {
	Tab string `json:"tab"`
}

// EventSnapshot is the first event of every watch. It carries the tab's
// current state and tells the client the subscription is live.
const EventSnapshot = "snapshot"

// Event is a tab notification. Kind is the suffix after "tab.<id>.".
type Event struct {
	Tab    string `json:"tab"`
	Kind   string `json:"kind"`
	AtMS   int64  `json:"atMs"`
	Unread int    `json:"unread,omitempty"`
	Title  string `json:"title,omitempty"`
	Flash  bool   `json:"flash,omitempty"`
	State  string `json:"state,omitempty"`
}

type ListMessagesRequest struct {
	Tab string `json:"tab"`
}

type ListMessagesResponse struct {
	Messages []store.Message `json:"messages"`
}

// Upload is an attachment sent inline with a message.
type Upload struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data []byte `json:"data"`
}

type SendMessageRequest struct {
	Tab         string   `json:"tab"`
	Text        string   `json:"text"`
	Attachments []Upload `json:"attachments,omitempty"`
}

// SendMessageResponse has a nil Message when the send was blank.
type SendMessageResponse struct {
	Message *store.Message `json:"message,omitempty"`
}

type GetAttachmentRequest struct {
	Tab string `json:"tab"`
	ID  string `json:"id"`
}

// GetAttachmentResponse reports the loader outcome: found, unavailable or failed.
type GetAttachmentResponse struct {
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Data     []byte `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ListChartsRequest struct {
	Tab string `json:"tab"`
}

type ListChartsResponse struct {
	Charts []chart.Chart `json:"charts"`
}

// WatchChartsRequest streams a ListChartsResponse now and after every change.
type WatchChartsRequest struct {
	Tab string `json:"tab"`
}

type CreateChartRequest struct {
	Tab   string `json:"tab"`
	Title string `json:"title"`
	Type  string `json:"type"`
	CSV   string `json:"csv"`
}

type CreateChartResponse struct {
	Chart chart.Chart `json:"chart"`
}

type DeleteChartRequest struct {
	Tab string `json:"tab"`
	ID  string `json:"id"`
}

type DeleteChartResponse struct{}

type ExportChartRequest struct {
	Tab string `json:"tab"`
	ID  string `json:"id"`
}

type ExportChartResponse struct {
	FileName string `json:"fileName"`
	PNG      []byte `json:"png"`
}
