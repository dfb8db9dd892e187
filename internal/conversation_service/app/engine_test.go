package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rentwatch/golang_services/internal/conversation_service/domain"
	searchdomain "github.com/rentwatch/golang_services/internal/search_service/domain"
)

func TestEngine_CreateSearchWizard(t *testing.T) {
	c := setupEngineTest(t, Config{})
	c.runner.On("RunSearch", mock.Anything, mock.Anything, searchdomain.CheckImmediate).
		Return(searchdomain.CheckOutcome{}, nil).Once()

	c.send(t, press(1, domain.KindCreateSearch))
	assert.Equal(t, msgEnterMinPrice, c.channel.last().Text)
	c.send(t, text(1, " 500 "))
	assert.Equal(t, msgEnterMaxPrice, c.channel.last().Text)
	c.send(t, text(1, "1200"))
	assert.Equal(t, msgChooseRooms, c.channel.last().Text)

	rooms := press(1, domain.KindSelectRooms)
	rooms.Rooms = 2
	c.send(t, rooms)
	assert.Equal(t, msgChooseDistricts, c.channel.last().Text)

	toggle := press(1, domain.KindToggleDistrict)
	toggle.District = "ruzafa"
	c.send(t, toggle)
	menu := c.channel.last()
	assert.Equal(t, 7, menu.MessageID)
	assert.Equal(t, "✅ Ruzafa", menu.Keyboard[0][0].Text)

	c.send(t, press(1, domain.KindDistrictsDone))

	search, err := c.registry.ActiveSearch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, searchdomain.Criteria{
		MinPrice:  searchdomain.IntPtr(500),
		MaxPrice:  searchdomain.IntPtr(1200),
		NumRooms:  searchdomain.IntPtr(2),
		Districts: []string{"Ruzafa"},
	}, search.Criteria)
	assert.True(t, c.channel.sawText(msgSearchCreated))

	require.Eventually(t, func() bool {
		return c.channel.sawText("no matching apartments yet")
	}, 2*time.Second, 10*time.Millisecond)
	c.runner.AssertExpectations(t)

	for _, a := range c.channel.ackList() {
		assert.Empty(t, a.Alert, "button %s", a.EventID)
	}
	assert.Len(t, c.channel.ackList(), 4)
}

func TestEngine_SelectAllDistricts(t *testing.T) {
	c := setupEngineTest(t, Config{})
	c.runner.On("RunSearch", mock.Anything, mock.Anything, searchdomain.CheckImmediate).
		Return(searchdomain.CheckOutcome{New: 2, Delivered: 2, Recorded: 2}, nil)

	c.send(t, press(2, domain.KindCreateSearch))
	c.send(t, text(2, "0"))
	c.send(t, text(2, "900"))
	rooms := press(2, domain.KindSelectRooms)
	rooms.Rooms = 5
	c.send(t, rooms)
	c.send(t, press(2, domain.KindSelectAllDistricts))

	search, err := c.registry.ActiveSearch(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, search.Criteria.Districts)
	assert.Equal(t, 0, *search.Criteria.MinPrice)
	assert.Equal(t, 5, *search.Criteria.NumRooms)

	require.Eventually(t, func() bool {
		return c.channel.sawText("I will check for new offers every 1 hour.")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_DistrictsDoneRequiresSelection(t *testing.T) {
	c := setupEngineTest(t, Config{})

	c.send(t, press(3, domain.KindCreateSearch))
	c.send(t, text(3, "100"))
	c.send(t, text(3, "200"))
	rooms := press(3, domain.KindSelectRooms)
	rooms.Rooms = 1
	c.send(t, rooms)
	c.send(t, press(3, domain.KindDistrictsDone))

	assert.Equal(t, msgNeedDistrict, c.channel.last().Text)
	_, err := c.registry.CurrentSearch(context.Background(), 3)
	assert.ErrorIs(t, err, searchdomain.ErrNotFound)
}

func TestEngine_PriceValidation(t *testing.T) {
	c := setupEngineTest(t, Config{})

	c.send(t, press(4, domain.KindCreateSearch))
	c.send(t, text(4, "cheap"))
	assert.Equal(t, fmt.Sprintf(msgInvalidNumber, 500), c.channel.last().Text)
	c.send(t, text(4, "-5"))
	assert.Equal(t, fmt.Sprintf(msgNegativePrice, "minimum"), c.channel.last().Text)

	c.send(t, text(4, "800"))
	c.send(t, text(4, "800"))
	assert.Equal(t, fmt.Sprintf(msgMaxNotAboveMin, "800"), c.channel.last().Text)
	c.send(t, text(4, "1.5k"))
	assert.Equal(t, fmt.Sprintf(msgInvalidNumber, 1200), c.channel.last().Text)

	c.send(t, text(4, "1500"))
	assert.Equal(t, msgChooseRooms, c.channel.last().Text)

	c.send(t, text(4, "3"))
	assert.Equal(t, msgUseButtons, c.channel.last().Text)
}

func TestEngine_RefusesSecondActiveSearch(t *testing.T) {
	c := setupEngineTest(t, Config{})
	c.existingSearch(t, 5, searchdomain.Criteria{MaxPrice: searchdomain.IntPtr(1000)})

	c.send(t, press(5, domain.KindCreateSearch))
	assert.Equal(t, msgAlreadyActive, c.channel.last().Text)

	c.send(t, text(5, "100"))
	assert.Equal(t, msgUsage, c.channel.last().Text)
}

func TestEngine_LimitExceededAtCompletion(t *testing.T) {
	c := setupEngineTest(t, Config{})

	c.send(t, press(6, domain.KindCreateSearch))
	c.send(t, text(6, "100"))
	c.send(t, text(6, "200"))
	rooms := press(6, domain.KindSelectRooms)
	rooms.Rooms = 2
	c.send(t, rooms)

	// Another session of the same user got there first.
	first := c.existingSearch(t, 6, searchdomain.Criteria{MaxPrice: searchdomain.IntPtr(999)})

	c.send(t, press(6, domain.KindSelectAllDistricts))
	assert.Equal(t, msgLimitExceeded, c.channel.last().Text)

	current, err := c.registry.ActiveSearch(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)
	c.runner.AssertNotCalled(t, "RunSearch", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_EditPriceLeavesOtherFields(t *testing.T) {
	c := setupEngineTest(t, Config{})
	search := c.existingSearch(t, 7, searchdomain.Criteria{
		MinPrice:  searchdomain.IntPtr(400),
		MaxPrice:  searchdomain.IntPtr(900),
		NumRooms:  searchdomain.IntPtr(3),
		Districts: []string{"Benimaclet"},
	})

	c.send(t, press(7, domain.KindEditSearch))
	assert.Equal(t, msgEditWhat, c.channel.last().Text)
	c.send(t, press(7, domain.KindEditPrice))
	assert.Contains(t, c.channel.last().Text, "400 – 900 EUR")
	c.send(t, text(7, "600"))
	assert.Equal(t, msgEnterNewMaxPrice, c.channel.last().Text)
	c.send(t, text(7, "1500"))
	assert.Equal(t, "✅ Prices updated: 600 – 1,500 EUR"+msgChangesSaved, c.channel.last().Text)

	stored, err := c.registry.GetSearch(context.Background(), search.ID)
	require.NoError(t, err)
	assert.Equal(t, 600, *stored.Criteria.MinPrice)
	assert.Equal(t, 1500, *stored.Criteria.MaxPrice)
	assert.Equal(t, 3, *stored.Criteria.NumRooms)
	assert.Equal(t, []string{"Benimaclet"}, stored.Criteria.Districts)
	assert.Equal(t, searchdomain.StatusActive, stored.Status)
}

func TestEngine_EditDistrictsAndRooms(t *testing.T) {
	c := setupEngineTest(t, Config{})
	search := c.existingSearch(t, 8, searchdomain.Criteria{
		MaxPrice:  searchdomain.IntPtr(900),
		NumRooms:  searchdomain.IntPtr(1),
		Districts: []string{"Benimaclet"},
	})

	c.send(t, press(8, domain.KindEditDistricts))
	toggle := press(8, domain.KindToggleDistrict)
	toggle.District = "Campanar"
	c.send(t, toggle)
	toggle.District = "Benimaclet"
	c.send(t, toggle)
	c.send(t, press(8, domain.KindDistrictsDone))
	assert.Equal(t, "✅ Districts updated: Campanar"+msgChangesSaved, c.channel.last().Text)

	c.send(t, press(8, domain.KindEditRooms))
	rooms := press(8, domain.KindSelectRooms)
	rooms.Rooms = 4
	c.send(t, rooms)

	stored, err := c.registry.GetSearch(context.Background(), search.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Campanar"}, stored.Criteria.Districts)
	assert.Equal(t, 4, *stored.Criteria.NumRooms)
	assert.Equal(t, 900, *stored.Criteria.MaxPrice)
}

func TestEngine_EditOfDeletedSearch(t *testing.T) {
	c := setupEngineTest(t, Config{})
	search := c.existingSearch(t, 9, searchdomain.Criteria{MaxPrice: searchdomain.IntPtr(900)})

	c.send(t, press(9, domain.KindEditRooms))
	require.NoError(t, c.registry.DeleteSearch(context.Background(), search.ID))

	rooms := press(9, domain.KindSelectRooms)
	rooms.Rooms = 2
	c.send(t, rooms)
	assert.Equal(t, msgSearchGone, c.channel.last().Text)

	c.send(t, rooms)
	assert.Equal(t, msgStaleMenu, c.channel.last().Text)
}

func TestEngine_Cancel(t *testing.T) {
	c := setupEngineTest(t, Config{})

	c.send(t, command(10, domain.KindCancel))
	assert.Equal(t, msgNothingToCancel, c.channel.last().Text)

	c.send(t, press(10, domain.KindCreateSearch))
	c.send(t, text(10, "300"))
	c.send(t, command(10, domain.KindCancel))
	assert.Equal(t, msgCancelled, c.channel.last().Text)

	c.send(t, text(10, "900"))
	assert.Equal(t, msgUsage, c.channel.last().Text)
}

func TestEngine_StaleButtonIsAcknowledged(t *testing.T) {
	c := setupEngineTest(t, Config{})

	rooms := press(11, domain.KindSelectRooms)
	rooms.Rooms = 2
	c.send(t, rooms)

	assert.Equal(t, msgStaleMenu, c.channel.last().Text)
	assert.Equal(t, []ack{{EventID: rooms.EventID}}, c.channel.ackList())
}

func TestEngine_UnknownDistrict(t *testing.T) {
	c := setupEngineTest(t, Config{})
	c.send(t, press(12, domain.KindCreateSearch))
	c.send(t, text(12, "1"))
	c.send(t, text(12, "2"))
	rooms := press(12, domain.KindSelectRooms)
	rooms.Rooms = 1
	c.send(t, rooms)

	toggle := press(12, domain.KindToggleDistrict)
	toggle.District = "Atlantis"
	c.send(t, toggle)
	assert.Equal(t, msgUnknownDistrict, c.channel.last().Text)
}

func TestEngine_MySearchAndLifecycle(t *testing.T) {
	c := setupEngineTest(t, Config{})
	ctx := context.Background()

	c.send(t, command(13, domain.KindMySearch))
	assert.Equal(t, msgNoSearch, c.channel.last().Text)

	search := c.existingSearch(t, 13, searchdomain.Criteria{
		MinPrice: searchdomain.IntPtr(500),
		MaxPrice: searchdomain.IntPtr(1200),
	})
	_, err := c.ledger.Commit(ctx, search.ID, []searchdomain.Listing{
		{ExternalID: "a", URL: "https://example.com/a"},
		{ExternalID: "b", URL: "https://example.com/b"},
	})
	require.NoError(t, err)

	c.send(t, command(13, domain.KindMySearch))
	info := c.channel.last()
	assert.Contains(t, info.Text, "Status: ✅ Active")
	assert.Contains(t, info.Text, "💰 Price: 500 – 1,200 EUR")
	assert.Contains(t, info.Text, "🛏 Rooms: any")
	assert.Contains(t, info.Text, "📍 Districts: All districts")
	assert.Contains(t, info.Text, "📨 Listings sent: 2")
	assert.Contains(t, info.Text, "🕐 Last check: never")
	assert.Equal(t, "⏸ Pause", info.Keyboard[0][0].Text)

	c.send(t, press(13, domain.KindPauseSearch))
	assert.Equal(t, msgPaused, c.channel.last().Text)
	current, err := c.registry.CurrentSearch(ctx, 13)
	require.NoError(t, err)
	assert.Equal(t, searchdomain.StatusPaused, current.Status)

	c.send(t, press(13, domain.KindPauseSearch))
	assert.Equal(t, msgNoActiveSearch, c.channel.last().Text)

	c.send(t, press(13, domain.KindResumeSearch))
	assert.Contains(t, c.channel.last().Text, "Search resumed")
	c.send(t, press(13, domain.KindResumeSearch))
	assert.Equal(t, msgNoPausedSearch, c.channel.last().Text)

	c.send(t, press(13, domain.KindDeleteSearch))
	assert.Equal(t, msgConfirmDelete, c.channel.last().Text)
	c.send(t, press(13, domain.KindCancelDelete))
	assert.Equal(t, msgDeleteCancelled, c.channel.last().Text)

	c.send(t, press(13, domain.KindDeleteSearch))
	c.send(t, press(13, domain.KindConfirmDelete))
	assert.Equal(t, msgDeleted, c.channel.last().Text)
	_, err = c.registry.CurrentSearch(ctx, 13)
	assert.ErrorIs(t, err, searchdomain.ErrNotFound)
}

func TestEngine_StartGreetsByName(t *testing.T) {
	c := setupEngineTest(t, Config{CheckInterval: 30 * time.Minute})

	c.send(t, domain.Event{Kind: domain.KindStart, UserID: 14, FirstName: "Lucia"})
	last := c.channel.last()
	assert.Contains(t, last.Text, "Hi, Lucia!")
	assert.Contains(t, last.Text, "every 30 min")
	assert.Equal(t, int64(14), last.ChatID)

	c.send(t, command(14, domain.KindUnknownCommand))
	assert.Equal(t, msgUnknownCommand, c.channel.last().Text)
}

func TestEngine_PreservesPerUserOrder(t *testing.T) {
	c := setupEngineTest(t, Config{})
	ctx := context.Background()

	var dones []<-chan error
	for _, ev := range []domain.Event{press(15, domain.KindCreateSearch), text(15, "500"), text(15, "1200")} {
		done, err := c.engine.Submit(ctx, ev)
		require.NoError(t, err)
		dones = append(dones, done)
	}
	for _, done := range dones {
		require.NoError(t, <-done)
	}

	assert.Equal(t, []string{msgEnterMinPrice, msgEnterMaxPrice, msgChooseRooms}, c.channel.texts())
}

func TestEngine_MailboxFull(t *testing.T) {
	c := setupEngineTest(t, Config{MailboxSize: 1})
	c.channel.gate = make(chan struct{})
	c.channel.entered = make(chan struct{}, 1)
	ctx := context.Background()

	first, err := c.engine.Submit(ctx, command(16, domain.KindHelp))
	require.NoError(t, err)
	<-c.channel.entered

	second, err := c.engine.Submit(ctx, command(16, domain.KindHelp))
	require.NoError(t, err)
	_, err = c.engine.Submit(ctx, command(16, domain.KindHelp))
	assert.ErrorIs(t, err, ErrMailboxFull)

	// Other users are not affected.
	other, err := c.engine.Submit(ctx, command(17, domain.KindHelp))
	require.NoError(t, err)

	close(c.channel.gate)
	require.NoError(t, <-first)
	require.NoError(t, <-second)
	require.NoError(t, <-other)
}

func TestEngine_ReapsIdleSessions(t *testing.T) {
	c := setupEngineTest(t, Config{IdleTTL: 50 * time.Millisecond})

	c.send(t, press(18, domain.KindCreateSearch))
	assert.Equal(t, 1, c.engine.ActiveSessions())

	require.Eventually(t, func() bool {
		return c.engine.ActiveSessions() == 0
	}, 2*time.Second, 10*time.Millisecond)

	c.send(t, text(18, "500"))
	assert.Equal(t, msgUsage, c.channel.last().Text)
}

func TestEngine_RejectsInvalidEventsAndClosed(t *testing.T) {
	c := setupEngineTest(t, Config{})
	ctx := context.Background()

	_, err := c.engine.Submit(ctx, domain.Event{Kind: domain.KindHelp})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = c.engine.Submit(ctx, domain.Event{Kind: domain.NumEventKinds, UserID: 1})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	c.engine.Close()
	_, err = c.engine.Submit(ctx, command(19, domain.KindHelp))
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngine_EveryKindHasHandler(t *testing.T) {
	c := setupEngineTest(t, Config{})
	for k := domain.EventKind(0); k < domain.NumEventKinds; k++ {
		assert.NotNil(t, c.engine.handlers[k], "kind %s", k)
	}
}

func TestEngine_ImmediateCheckFailure(t *testing.T) {
	c := setupEngineTest(t, Config{})
	c.runner.On("RunSearch", mock.Anything, mock.Anything, searchdomain.CheckImmediate).
		Return(searchdomain.CheckOutcome{}, searchdomain.ErrFetchFailure)

	c.send(t, press(20, domain.KindCreateSearch))
	c.send(t, text(20, "1"))
	c.send(t, text(20, "2"))
	rooms := press(20, domain.KindSelectRooms)
	rooms.Rooms = 1
	c.send(t, rooms)
	c.send(t, press(20, domain.KindSelectAllDistricts))

	require.Eventually(t, func() bool {
		return c.channel.sawText("Could not fetch listings right now")
	}, 2*time.Second, 10*time.Millisecond)

	_, err := c.registry.ActiveSearch(context.Background(), 20)
	assert.NoError(t, err)
}

func TestEngine_ImmediateCheckSkippedWhilePassRuns(t *testing.T) {
	c := setupEngineTest(t, Config{})
	c.runner.On("RunSearch", mock.Anything, mock.Anything, searchdomain.CheckImmediate).
		Return(searchdomain.CheckOutcome{Skipped: true}, nil)

	c.send(t, press(21, domain.KindCreateSearch))
	c.send(t, text(21, "1"))
	c.send(t, text(21, "2"))
	rooms := press(21, domain.KindSelectRooms)
	rooms.Rooms = 1
	c.send(t, rooms)
	c.send(t, press(21, domain.KindSelectAllDistricts))

	require.Eventually(t, func() bool {
		return c.channel.sawText("✅ I will check for new offers every")
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, c.channel.sawText("no matching apartments yet"))
}
