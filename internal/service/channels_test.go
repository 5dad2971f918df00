package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchlink/internal/models"
	"watchlink/internal/notify"
	"watchlink/internal/test"
	"watchlink/pkg/events"
)

func channelUpdate(newDiscount, newBestPrice *bool) models.ChannelUpdate {
	return models.ChannelUpdate{NewDiscount: newDiscount, NewBestPrice: newBestPrice}
}

func channelUpdateWithWatchList(codes ...string) models.ChannelUpdate {
	if codes == nil {
		codes = []string{}
	}
	return models.ChannelUpdate{WatchList: codes}
}

type fakeNotify struct {
	identity    *notify.ChannelIdentity
	identityErr error
	sendResult  bool
	sent        []string
	revoked     []string
}

func (f *fakeNotify) FetchIdentity(ctx context.Context, token string) (*notify.ChannelIdentity, error) {
	return f.identity, f.identityErr
}

func (f *fakeNotify) SendMessage(ctx context.Context, token, text string) bool {
	f.sent = append(f.sent, text)
	return f.sendResult
}

func (f *fakeNotify) Revoke(ctx context.Context, token string) {
	f.revoked = append(f.revoked, token)
}

type fakeCatalog struct {
	names map[string]string
	err   error
	calls []string
}

func (f *fakeCatalog) Lookup(ctx context.Context, code string) (string, error) {
	f.calls = append(f.calls, code)
	if f.err != nil {
		return "", f.err
	}
	return f.names[code], nil
}

type capturingPublisher struct {
	tasks []*asynq.Task
	err   error
}

func (p *capturingPublisher) Publish(task *asynq.Task) error {
	p.tasks = append(p.tasks, task)
	return p.err
}

func (p *capturingPublisher) payloads(t *testing.T, taskType string) []events.SubscriptionEventPayload {
	t.Helper()
	var result []events.SubscriptionEventPayload
	for _, task := range p.tasks {
		if task.Type() != taskType {
			continue
		}
		var payload events.SubscriptionEventPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		result = append(result, payload)
	}
	return result
}

func newTestService() (*ChannelService, *fakeNotify, *fakeCatalog, *capturingPublisher, *test.MockTaskEnqueuer) {
	notifyClient := &fakeNotify{sendResult: true}
	products := &fakeCatalog{names: map[string]string{}}
	publisher := &capturingPublisher{}
	enqueuer := &test.MockTaskEnqueuer{}
	svc := NewChannelService(notifyClient, products, publisher, enqueuer)
	return svc, notifyClient, products, publisher, enqueuer
}

var channelColumns = []string{
	"id", "owner_id", "room_name", "room_type", "token",
	"notify_new_discount", "notify_new_best_price", "watch_list", "created_at",
}

func channelRow(id, owner, token, watchList string) *sqlmock.Rows {
	return sqlmock.NewRows(channelColumns).
		AddRow(id, owner, "Family Group", "group", token, false, false, watchList, time.Now())
}

func productRow(code, name, watchers string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"code", "name", "watchers"}).AddRow(code, name, watchers)
}

func TestUpdateChannelReconcilesWatchList(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, _, products, publisher, enqueuer := newTestService()
	products.names["333333"] = "Gadget"

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(channelRow("ch-1", "user-42", "room-token", "{111111,222222}"))

	// 111111 leaves the set; ch-1 was its sole watcher.
	mock.ExpectQuery(`SELECT \* FROM watched_products WHERE code = \$1`).
		WithArgs("111111").
		WillReturnRows(productRow("111111", "Widget", "{ch-1}"))
	mock.ExpectExec(`DELETE FROM watched_products WHERE code = \$1`).
		WithArgs("111111").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// 333333 joins the set; no record yet, so the catalog names it.
	mock.ExpectQuery(`SELECT \* FROM watched_products WHERE code = \$1`).
		WithArgs("333333").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO watched_products`).
		WithArgs("333333", "Gadget", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`UPDATE channels`).
		WithArgs("ch-1", false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.UpdateChannel(context.Background(), "user-42", "ch-1",
		channelUpdateWithWatchList("222222", "333333"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	// 222222 is in both sets: no catalog call, no events for it.
	assert.Equal(t, []string{"333333"}, products.calls)

	removes := publisher.payloads(t, events.TypeRemoveSubscription)
	require.Len(t, removes, 1)
	assert.Equal(t, "111111", removes[0].Code)
	assert.Equal(t, "room-token", removes[0].Subscriber)
	assert.Equal(t, events.KindInventoryCheck, removes[0].SubscriptionType)

	registers := publisher.payloads(t, events.TypeRegisterSubscription)
	require.Len(t, registers, 1)
	assert.Equal(t, "333333", registers[0].Code)

	// One summary message for the channel's worker queue.
	assert.Len(t, enqueuer.TasksOfType(events.TypeChannelMessage), 1)
}

func TestReconcileKeepsProductWithCoWatchers(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, _, _, publisher, _ := newTestService()

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(channelRow("ch-1", "user-42", "room-token", "{111111}"))

	// Another channel still watches 111111, so the record survives.
	mock.ExpectQuery(`SELECT \* FROM watched_products WHERE code = \$1`).
		WithArgs("111111").
		WillReturnRows(productRow("111111", "Widget", "{ch-1,ch-2}"))
	mock.ExpectExec(`UPDATE watched_products SET watchers = \$2 WHERE code = \$1`).
		WithArgs("111111", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`UPDATE channels`).
		WithArgs("ch-1", false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.UpdateChannel(context.Background(), "user-42", "ch-1", channelUpdateWithWatchList())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Len(t, publisher.payloads(t, events.TypeRemoveSubscription), 1)
}

func TestReconcileUnsubscribesEvenWithoutReverseIndexRecord(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, _, _, publisher, _ := newTestService()

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(channelRow("ch-1", "user-42", "room-token", "{111111}"))

	// Partial prior state: the code is on the channel but has no record.
	mock.ExpectQuery(`SELECT \* FROM watched_products WHERE code = \$1`).
		WithArgs("111111").
		WillReturnError(sql.ErrNoRows)

	mock.ExpectExec(`UPDATE channels`).
		WithArgs("ch-1", false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.UpdateChannel(context.Background(), "user-42", "ch-1", channelUpdateWithWatchList())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Len(t, publisher.payloads(t, events.TypeRemoveSubscription), 1)
}

func TestReconcileSkipsUnresolvableCode(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, _, products, publisher, _ := newTestService()

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(channelRow("ch-1", "user-42", "room-token", "{}"))

	mock.ExpectQuery(`SELECT \* FROM watched_products WHERE code = \$1`).
		WithArgs("999999").
		WillReturnError(sql.ErrNoRows)

	// No insert for the skipped code; the persisted watch list stays empty.
	mock.ExpectExec(`UPDATE channels`).
		WithArgs("ch-1", false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.UpdateChannel(context.Background(), "user-42", "ch-1", channelUpdateWithWatchList("999999"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"999999"}, products.calls)
	assert.Empty(t, publisher.payloads(t, events.TypeRegisterSubscription))
}

func TestReconcileJoinsExistingProduct(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, _, products, publisher, _ := newTestService()

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("ch-2").
		WillReturnRows(channelRow("ch-2", "user-42", "other-token", "{}"))

	mock.ExpectQuery(`SELECT \* FROM watched_products WHERE code = \$1`).
		WithArgs("111111").
		WillReturnRows(productRow("111111", "Widget", "{ch-1}"))
	mock.ExpectExec(`UPDATE watched_products SET watchers = \$2 WHERE code = \$1`).
		WithArgs("111111", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`UPDATE channels`).
		WithArgs("ch-2", false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.UpdateChannel(context.Background(), "user-42", "ch-2", channelUpdateWithWatchList("111111"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	// The shared record already has a name; the catalog is not consulted.
	assert.Empty(t, products.calls)
	assert.Len(t, publisher.payloads(t, events.TypeRegisterSubscription), 1)
}

func TestUpdateChannelTogglesFlags(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, _, _, publisher, enqueuer := newTestService()

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(channelRow("ch-1", "user-42", "room-token", "{}"))
	mock.ExpectExec(`UPDATE channels`).
		WithArgs("ch-1", true, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enable := true
	disable := false
	err := svc.UpdateChannel(context.Background(), "user-42", "ch-1", channelUpdate(&enable, &disable))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	registers := publisher.payloads(t, events.TypeRegisterSubscription)
	require.Len(t, registers, 1)
	assert.Equal(t, events.KindNewDiscount, registers[0].SubscriptionType)
	assert.Empty(t, registers[0].Code)

	removes := publisher.payloads(t, events.TypeRemoveSubscription)
	require.Len(t, removes, 1)
	assert.Equal(t, events.KindNewBestPrice, removes[0].SubscriptionType)

	assert.Len(t, enqueuer.TasksOfType(events.TypeChannelMessage), 1)
}

func TestRevokeChannel(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, notifyClient, _, publisher, _ := newTestService()

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(channelRow("ch-1", "user-42", "room-token", "{111111}"))

	mock.ExpectQuery(`SELECT \* FROM watched_products WHERE code = \$1`).
		WithArgs("111111").
		WillReturnRows(productRow("111111", "Widget", "{ch-1}"))
	mock.ExpectExec(`DELETE FROM watched_products WHERE code = \$1`).
		WithArgs("111111").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`DELETE FROM channels WHERE id = \$1`).
		WithArgs("ch-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.RevokeChannel(context.Background(), "user-42", "ch-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Len(t, publisher.payloads(t, events.TypeRemoveSubscription), 1)
	removeAll := publisher.payloads(t, events.TypeRemoveSubscriber)
	require.Len(t, removeAll, 1)
	assert.Equal(t, "room-token", removeAll[0].Subscriber)

	// Exactly one provider revoke attempt, regardless of its outcome.
	assert.Equal(t, []string{"room-token"}, notifyClient.revoked)
}

func TestCreateChannel(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, notifyClient, _, _, _ := newTestService()
	notifyClient.identity = &notify.ChannelIdentity{Target: "Family Group", TargetType: "group"}

	mock.ExpectQuery(`INSERT INTO channels`).
		WithArgs(sqlmock.AnyArg(), "user-42", "Family Group", "group", "room-token", false, false, sqlmock.AnyArg()).
		WillReturnRows(channelRow("ch-1", "user-42", "room-token", "{}"))

	created, err := svc.CreateChannel(context.Background(), "user-42", "room-token")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "ch-1", created.ID)
	assert.Equal(t, "user-42", created.OwnerID)
	assert.Empty(t, notifyClient.revoked)
}

func TestCreateChannelRevokesUnusableToken(t *testing.T) {
	test.NewMockDB(t)
	svc, notifyClient, _, _, _ := newTestService()
	notifyClient.identity = nil

	_, err := svc.CreateChannel(context.Background(), "user-42", "room-token")
	assert.ErrorIs(t, err, ErrIdentityLookupFailed)
	assert.Equal(t, []string{"room-token"}, notifyClient.revoked)
}

func TestChannelOwnershipReadsAsNotFound(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, _, _, _, _ := newTestService()

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(channelRow("ch-1", "someone-else", "room-token", "{}"))

	_, err := svc.GetChannel(context.Background(), "user-42", "ch-1")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestMissingChannelReadsAsNotFound(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, _, _, _, _ := newTestService()

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	err := svc.UpdateChannel(context.Background(), "user-42", "nope", channelUpdateWithWatchList("111111"))
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestStoreFailureAbortsReconcile(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, _, _, publisher, _ := newTestService()

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(channelRow("ch-1", "user-42", "room-token", "{111111}"))
	mock.ExpectQuery(`SELECT \* FROM watched_products WHERE code = \$1`).
		WithArgs("111111").
		WillReturnError(errors.New("connection reset"))

	err := svc.UpdateChannel(context.Background(), "user-42", "ch-1", channelUpdateWithWatchList())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrChannelNotFound)
	assert.Empty(t, publisher.tasks)
}

func TestSendTestMessage(t *testing.T) {
	_, mock := test.NewMockDB(t)
	svc, notifyClient, _, _, _ := newTestService()

	mock.ExpectQuery(`SELECT \* FROM channels WHERE id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(channelRow("ch-1", "user-42", "room-token", "{}"))

	ok, err := svc.SendTestMessage(context.Background(), "user-42", "ch-1", "ping")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"ping"}, notifyClient.sent)
}
