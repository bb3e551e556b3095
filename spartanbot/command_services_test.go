package spartanbot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowButtonLabels(t testing.TB, row discordgo.MessageComponent) []string {
	t.Helper()
	actionsRow, ok := row.(discordgo.ActionsRow)
	require.True(t, ok)
	labels := make([]string, 0, len(actionsRow.Components))
	for _, c := range actionsRow.Components {
		button, ok := c.(discordgo.Button)
		require.True(t, ok)
		labels = append(labels, button.Label)
	}
	return labels
}

func TestServiceActionRowsByStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   string
		wantRows [][]string
	}{
		{
			"active",
			[][]string{
				{"Suspend", "Terminate", "Cancel"},
				{"Change Price", "Change Due Date"},
			},
		},
		{
			"suspended",
			[][]string{{"Unsuspend", "Terminate", "Cancel"}},
		},
		{
			"terminated",
			[][]string{{"Delete Permanently", "Cancel"}},
		},
		{
			"pending",
			[][]string{
				{"Activate", "Terminate", "Cancel"},
				{"Change Price"},
			},
		},
		{
			"cancelled",
			[][]string{{"Cancel"}},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.status, func(t *testing.T) {
			t.Parallel()

			rows := serviceActionRows(7, "1234", tc.status)
			require.Len(t, rows, len(tc.wantRows))
			for i, want := range tc.wantRows {
				assert.Equal(t, want, rowButtonLabels(t, rows[i]))
			}
		})
	}
}

func TestServiceActionRowCustomIDs(t *testing.T) {
	t.Parallel()

	rows := serviceActionRows(7, "1234", "active")
	require.Len(t, rows, 2)

	lifecycle, ok := rows[0].(discordgo.ActionsRow)
	require.True(t, ok)
	suspend, ok := lifecycle.Components[0].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, "suspend_service_7_1234", suspend.CustomID)
	cancel, ok := lifecycle.Components[2].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, customIDCancelServiceAction, cancel.CustomID)

	billing, ok := rows[1].(discordgo.ActionsRow)
	require.True(t, ok)
	price, ok := billing.Components[0].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, changePriceCustomID(7, "1234"), price.CustomID)
	dueDate, ok := billing.Components[1].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, changeDueDateCustomID(7, "1234"), dueDate.CustomID)
}

func TestServiceSelectRow(t *testing.T) {
	t.Parallel()

	services := []PanelService{
		{
			ID:          7,
			ServiceName: "VPS Basic",
			Status:      "active",
			Owner:       &PanelServiceOwner{Email: "bob@example.com"},
		},
		{
			ID:          8,
			ServiceName: "Web Hosting",
			Status:      "pending_review",
		},
	}
	row := serviceSelectRow("1234", services)
	require.Len(t, row.Components, 1)

	menu, ok := row.Components[0].(discordgo.SelectMenu)
	require.True(t, ok)
	assert.Equal(t, serviceSelectCustomID("1234"), menu.CustomID)
	assert.Equal(t, "Select a service to manage", menu.Placeholder)
	require.Len(t, menu.Options, 2)

	assert.Equal(t, "VPS Basic (#7)", menu.Options[0].Label)
	assert.Equal(t, "7_active", menu.Options[0].Value)
	assert.Equal(t, "bob@example.com • active", menu.Options[0].Description)
	require.NotNil(t, menu.Options[0].Emoji)
	assert.Equal(t, "✅", menu.Options[0].Emoji.Name)

	// A status with embedded underscores survives the value round trip.
	assert.Equal(t, "8_pending_review", menu.Options[1].Value)
	serviceID, status, err := parseServiceSelectValue(menu.Options[1].Value)
	require.NoError(t, err)
	assert.Equal(t, int64(8), serviceID)
	assert.Equal(t, "pending_review", status)
}

func TestServiceFieldValue(t *testing.T) {
	t.Parallel()

	service := PanelService{
		ID:           7,
		ServiceName:  "VPS Basic",
		Status:       "active",
		Price:        "19.99",
		BillingCycle: "monthly",
		DueDate:      "2026-12-31",
		Product:      &PanelProduct{ID: 2, Name: "VPS"},
		Owner:        &PanelServiceOwner{Email: "bob@example.com"},
	}
	assert.Equal(
		t,
		"**Owner:** bob@example.com\n**Product:** VPS\n"+
			"**Price:** $19.99 / monthly\n**Due:** 2026-12-31",
		serviceFieldValue(service),
	)

	bare := PanelService{ID: 8, ServiceName: "Empty"}
	assert.Equal(
		t,
		"**Owner:** Unknown\n**Product:** -\n**Price:** $- / -\n**Due:** -",
		serviceFieldValue(bare),
	)
}

func TestRenderServicesBrowse(t *testing.T) {
	t.Parallel()

	state := NavigationState{
		Kind:     ResourceServices,
		Mode:     BrowseModePaged,
		Page:     2,
		PageSize: servicesPageSize,
		GuildID:  "1234",
		Email:    "bob@example.com",
		Status:   "active",
	}
	result := &BrowseResult[PanelService]{
		State: state,
		Page: &RemotePage[PanelService]{
			CurrentPage: 2,
			LastPage:    4,
			Total:       31,
			Data: []PanelService{
				{ID: 7, ServiceName: "VPS Basic", Status: "active"},
			},
		},
	}

	embeds, components := renderServicesBrowse(result)
	require.Len(t, embeds, 1)
	assert.Equal(t, "Panel Services", embeds[0].Title)
	assert.Equal(
		t,
		"Filtered by owner `bob@example.com`, status `active`",
		embeds[0].Description,
	)
	require.NotNil(t, embeds[0].Footer)
	assert.Equal(t, "Page 2 of 4 • 31 services total", embeds[0].Footer.Text)
	require.Len(t, embeds[0].Fields, 1)
	assert.Equal(t, "✅ VPS Basic (#7)", embeds[0].Fields[0].Name)

	// Select row plus pagination row.
	require.Len(t, components, 2)
}

func TestRenderServicesBrowseEmpty(t *testing.T) {
	t.Parallel()

	result := &BrowseResult[PanelService]{
		State: NavigationState{
			Kind:     ResourceServices,
			Mode:     BrowseModePaged,
			Page:     1,
			PageSize: servicesPageSize,
			GuildID:  "1234",
		},
		Page: &RemotePage[PanelService]{CurrentPage: 1, LastPage: 1},
	}

	embeds, components := renderServicesBrowse(result)
	require.Len(t, embeds, 1)
	assert.Equal(t, "No services found.", embeds[0].Description)
	assert.Empty(t, components)
}

func TestRenderServicesBrowseSinglePageHidesPagination(t *testing.T) {
	t.Parallel()

	result := &BrowseResult[PanelService]{
		State: NavigationState{
			Kind:     ResourceServices,
			Mode:     BrowseModePaged,
			Page:     1,
			PageSize: servicesPageSize,
			GuildID:  "1234",
		},
		Page: &RemotePage[PanelService]{
			CurrentPage: 1,
			LastPage:    1,
			Total:       2,
			Data: []PanelService{
				{ID: 7, ServiceName: "VPS Basic", Status: "active"},
				{ID: 8, ServiceName: "Web Hosting", Status: "pending"},
			},
		},
	}

	_, components := renderServicesBrowse(result)
	// Only the select row; no pagination buttons for a single page.
	require.Len(t, components, 1)
	_, ok := components[0].(discordgo.ActionsRow).Components[0].(discordgo.SelectMenu)
	assert.True(t, ok)
}

// shortenRefreshDelay drops the deferred refresh delay so tests don't
// sit through the production 2s. Tests using it mutate package state and
// must not run in parallel.
func shortenRefreshDelay(t testing.TB) {
	t.Helper()
	prev := servicesRefreshDelay
	servicesRefreshDelay = 10 * time.Millisecond
	t.Cleanup(func() {
		servicesRefreshDelay = prev
	})
}

func TestServiceOperationRefreshesList(t *testing.T) {
	shortenRefreshDelay(t)

	var listQuery atomic.Pointer[map[string][]string]
	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/application/services/7/suspend",
		func(w http.ResponseWriter, _ *http.Request) {
			writePanelSuccess(t, w, PanelService{ID: 7, Status: "suspended"})
		},
	)
	mux.HandleFunc(
		"/api/application/services",
		func(w http.ResponseWriter, r *http.Request) {
			query := map[string][]string(r.URL.Query())
			listQuery.Store(&query)
			writePanelSuccess(t, w, RemotePage[PanelService]{
				CurrentPage: 1,
				LastPage:    1,
				Total:       1,
				Data: []PanelService{
					{ID: 7, ServiceName: "VPS Basic", Status: "suspended"},
				},
			})
		},
	)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d := newComponentTestBot(t, srv.URL)
	handler := newRecordingHandler(
		componentInteraction("suspend_service_7_1234"),
	)

	d.handleServiceOperation(
		context.Background(), handler, ServiceOpSuspend,
		"suspend_service_7_1234",
	)

	require.Len(t, handler.responses, 1)
	assert.Equal(
		t,
		discordgo.InteractionResponseDeferredMessageUpdate,
		handler.responses[0].Type,
	)

	confirmation := handler.editAt(t, 0)
	require.NotNil(t, confirmation.Embeds)
	assert.Equal(t, "Service Updated", (*confirmation.Embeds)[0].Title)
	assert.Contains(
		t,
		(*confirmation.Embeds)[0].Description,
		"Service #7 has been suspended.",
	)

	// The first channel receive is the confirmation edit above.
	<-handler.editCh
	select {
	case refresh := <-handler.editCh:
		require.NotNil(t, refresh.Embeds)
		assert.Equal(t, "Panel Services", (*refresh.Embeds)[0].Title)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred refresh edit never arrived")
	}

	query := listQuery.Load()
	require.NotNil(t, query)
	assert.Equal(t, []string{"1"}, (*query)["page"])
	assert.NotContains(t, *query, "user_email")
	assert.NotContains(t, *query, "status")

	require.Eventually(
		t,
		func() bool { return d.refreshTimersRunning.Load() == 0 },
		time.Second,
		5*time.Millisecond,
	)
}

func TestServiceOperationFailureLeavesError(t *testing.T) {
	shortenRefreshDelay(t)

	var listHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/application/services/7/suspend",
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(
				[]byte(`{"success": false, "message": "already suspended"}`),
			)
		},
	)
	mux.HandleFunc(
		"/api/application/services",
		func(w http.ResponseWriter, _ *http.Request) {
			listHits.Add(1)
			writePanelSuccess(t, w, RemotePage[PanelService]{
				CurrentPage: 1, LastPage: 1,
			})
		},
	)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d := newComponentTestBot(t, srv.URL)
	handler := newRecordingHandler(
		componentInteraction("suspend_service_7_1234"),
	)

	d.handleServiceOperation(
		context.Background(), handler, ServiceOpSuspend,
		"suspend_service_7_1234",
	)

	errorEdit := handler.editAt(t, 0)
	require.NotNil(t, errorEdit.Embeds)
	assert.Equal(t, "Panel Error", (*errorEdit.Embeds)[0].Title)
	assert.Equal(t, "already suspended", (*errorEdit.Embeds)[0].Description)

	assert.Equal(t, int64(0), d.refreshTimersRunning.Load())
	time.Sleep(20 * servicesRefreshDelay)
	assert.Equal(t, 1, handler.editCount(), "error embed was replaced")
	assert.Equal(t, int64(0), listHits.Load())
}

func TestPriceModalFailureLeavesError(t *testing.T) {
	shortenRefreshDelay(t)

	var listHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/application/services/7/pricing",
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(
				[]byte(`{"success": false, "message": "price locked"}`),
			)
		},
	)
	mux.HandleFunc(
		"/api/application/services",
		func(w http.ResponseWriter, _ *http.Request) {
			listHits.Add(1)
			writePanelSuccess(t, w, RemotePage[PanelService]{
				CurrentPage: 1, LastPage: 1,
			})
		},
	)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d := newComponentTestBot(t, srv.URL)
	handler := newRecordingHandler(
		modalInteraction("price_modal_7_1234", priceModalInput, "19.99"),
	)

	d.handlePriceModalSubmit(
		context.Background(), handler, "price_modal_7_1234",
	)

	errorEdit := handler.editAt(t, 0)
	require.NotNil(t, errorEdit.Embeds)
	assert.Equal(t, "Panel Error", (*errorEdit.Embeds)[0].Title)

	time.Sleep(20 * servicesRefreshDelay)
	assert.Equal(t, 1, handler.editCount())
	assert.Equal(t, int64(0), listHits.Load())
}

func TestDueDateModalFailureLeavesError(t *testing.T) {
	shortenRefreshDelay(t)

	var listHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc(
		"/api/application/services/7/due-date",
		func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(
				[]byte(`{"success": false, "message": "invoice pending"}`),
			)
		},
	)
	mux.HandleFunc(
		"/api/application/services",
		func(w http.ResponseWriter, _ *http.Request) {
			listHits.Add(1)
			writePanelSuccess(t, w, RemotePage[PanelService]{
				CurrentPage: 1, LastPage: 1,
			})
		},
	)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d := newComponentTestBot(t, srv.URL)
	handler := newRecordingHandler(
		modalInteraction(
			"due_date_modal_7_1234", dueDateModalInput, "2026-12-31",
		),
	)

	d.handleDueDateModalSubmit(
		context.Background(), handler, "due_date_modal_7_1234",
	)

	errorEdit := handler.editAt(t, 0)
	require.NotNil(t, errorEdit.Embeds)
	assert.Equal(t, "Panel Error", (*errorEdit.Embeds)[0].Title)

	time.Sleep(20 * servicesRefreshDelay)
	assert.Equal(t, 1, handler.editCount())
	assert.Equal(t, int64(0), listHits.Load())
}
