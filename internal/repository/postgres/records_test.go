package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/reportsync/internal/domain"
)

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	t = t.UTC()
	return &t
}

func TestInsertNewRecordsFiltersExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	campaignID := uuid.New()
	existing := ts("2025-03-01T10:00:00Z")

	mock.ExpectQuery("SELECT phone, sent_at FROM campaign_records").
		WithArgs(campaignID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"phone", "sent_at"}).
			AddRow("5550001111", *existing))

	// Only the genuinely new record reaches the INSERT.
	mock.ExpectExec("INSERT INTO campaign_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRecordRepo(db)
	inserted, err := repo.InsertNewRecords(context.Background(), campaignID, []domain.CampaignRecord{
		{Phone: "5550001111", SentAt: existing, Status: "delivered"},
		{Phone: "5550002222", SentAt: ts("2025-03-01T10:01:00Z"), Status: "delivered"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNewRecordsSuppressesInBatchDuplicates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	campaignID := uuid.New()
	at := ts("2025-03-01T10:00:00Z")

	mock.ExpectQuery("SELECT phone, sent_at FROM campaign_records").
		WillReturnRows(sqlmock.NewRows([]string{"phone", "sent_at"}))
	mock.ExpectExec("INSERT INTO campaign_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRecordRepo(db)
	inserted, err := repo.InsertNewRecords(context.Background(), campaignID, []domain.CampaignRecord{
		{Phone: "5550001111", SentAt: at},
		{Phone: "5550001111", SentAt: at},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNewRecordsNilSentAtIsADistinctBucket(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	campaignID := uuid.New()

	// An existing NULL-sent_at row must block a nil-sent_at candidate for the
	// same phone, but not a timestamped one.
	mock.ExpectQuery("SELECT phone, sent_at FROM campaign_records").
		WillReturnRows(sqlmock.NewRows([]string{"phone", "sent_at"}).
			AddRow("5550001111", nil))
	mock.ExpectExec("INSERT INTO campaign_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRecordRepo(db)
	inserted, err := repo.InsertNewRecords(context.Background(), campaignID, []domain.CampaignRecord{
		{Phone: "5550001111", SentAt: nil},
		{Phone: "5550001111", SentAt: ts("2025-03-01T10:00:00Z")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNewRecordsEmptyBatchSkipsDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRecordRepo(db)
	inserted, err := repo.InsertNewRecords(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNewRecordsAllDuplicatesSkipsInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	campaignID := uuid.New()
	at := ts("2025-03-01T10:00:00Z")

	mock.ExpectQuery("SELECT phone, sent_at FROM campaign_records").
		WillReturnRows(sqlmock.NewRows([]string{"phone", "sent_at"}).
			AddRow("5550001111", *at))

	repo := NewRecordRepo(db)
	inserted, err := repo.InsertNewRecords(context.Background(), campaignID, []domain.CampaignRecord{
		{Phone: "5550001111", SentAt: at},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
