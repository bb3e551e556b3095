package spartanbot

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
)

// recordingHandler implements [InteractionHandler] for handler-level
// tests, recording every response and edit. Edits are also forwarded to
// a buffered channel so tests can wait on asynchronous ones.
type recordingHandler struct {
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger

	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit
	editCh    chan *discordgo.WebhookEdit
}

func newRecordingHandler(i *discordgo.InteractionCreate) *recordingHandler {
	return &recordingHandler{
		interaction: i,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		editCh:      make(chan *discordgo.WebhookEdit, 8),
	}
}

func (h *recordingHandler) Respond(
	_ context.Context,
	i *discordgo.InteractionResponse,
) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, i)
	return nil
}

func (h *recordingHandler) GetResponse(context.Context) (
	*discordgo.Message,
	error,
) {
	return nil, nil
}

func (h *recordingHandler) Edit(
	_ context.Context,
	e *discordgo.WebhookEdit,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	h.mu.Lock()
	h.edits = append(h.edits, e)
	h.mu.Unlock()
	select {
	case h.editCh <- e:
	default:
	}
	return nil, nil
}

func (h *recordingHandler) Delete(context.Context, ...discordgo.RequestOption) {}

func (h *recordingHandler) GetInteraction() *discordgo.InteractionCreate {
	return h.interaction
}

func (h *recordingHandler) InteractionReceiveMethod() DiscordInteractionReceiveMethod {
	return discordInteractionReceiveMethodGateway
}

func (h *recordingHandler) Logger() *slog.Logger {
	return h.logger
}

func (h *recordingHandler) editCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.edits)
}

func (h *recordingHandler) editAt(t testing.TB, idx int) *discordgo.WebhookEdit {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Greater(t, len(h.edits), idx)
	return h.edits[idx]
}

// newComponentTestBot builds a SpartanBot with a real sqlite store (one
// linked guild "1234" with a synced admin "5678") and a panel client
// pointed at the given base URL. Discord and the status API are left nil
// since handler tests never touch them.
func newComponentTestBot(t testing.TB, panelURL string) *SpartanBot {
	t.Helper()
	logHandler := slog.NewTextHandler(io.Discard, nil)
	db := newTestStore(t, 0)

	ctx := context.Background()
	_, err := db.SaveGuildConfig(ctx, "1234", panelURL, "test-api-key")
	require.NoError(t, err)
	_, err = db.UpsertSyncedRole(ctx, "1234", "5678", 1, "admin")
	require.NoError(t, err)

	return &SpartanBot{
		db:         db,
		logger:     slog.New(logHandler),
		logHandler: logHandler,
		panel: NewPanelClient(
			&PanelConfig{RequestTimeout: MinPanelRequestTimeout},
			logHandler,
		),
	}
}

func componentInteraction(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:    discordgo.InteractionMessageComponent,
			GuildID: "1234",
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "5678", Username: "tester"},
			},
			Data: discordgo.MessageComponentInteractionData{
				CustomID: customID,
			},
		},
	}
}

func modalInteraction(
	customID string,
	inputCustomID string,
	value string,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:    discordgo.InteractionModalSubmit,
			GuildID: "1234",
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "5678", Username: "tester"},
			},
			Data: discordgo.ModalSubmitInteractionData{
				CustomID: customID,
				Components: []discordgo.MessageComponent{
					&discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							&discordgo.TextInput{
								CustomID: inputCustomID,
								Value:    value,
							},
						},
					},
				},
			},
		},
	}
}
