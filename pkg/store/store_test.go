package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturas/models"
	"facturas/pkg/extract"
)

// openTestStore connects to DB_DSN. Database tests are opt-in: set
// DB_DSN_TEST=1 and DB_DSN to run them.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("database tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	s, err := Open(os.Getenv("DB_DSN"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	s.Migrate(ctx)
	require.NoError(t, s.Seed(ctx, "admin123"))
	return s
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestUsersAndRefreshTokens(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	name := fmt.Sprintf("user-%d", time.Now().UnixNano())

	_, err := s.RegisterUser(ctx, name, "123")
	require.Error(t, err)

	u, err := s.RegisterUser(ctx, name, "secreto")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role.Name)

	_, err = s.RegisterUser(ctx, name, "secreto")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = s.Authenticate(ctx, name, "wrong!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "nobody-"+name, "secreto")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	got, err := s.Authenticate(ctx, "  "+name+" ", "secreto")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.False(t, got.IsAdmin())

	admin, err := s.UserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())

	raw, err := s.CreateRefreshToken(ctx, u.ID, time.Hour)
	require.NoError(t, err)

	owner, next, err := s.RotateRefreshToken(ctx, raw, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, u.ID, owner.ID)
	assert.NotEqual(t, raw, next)

	_, _, err = s.RotateRefreshToken(ctx, raw, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidCredentials, "rotated token is single use")

	require.NoError(t, s.RevokeRefreshToken(ctx, next))
	_, _, err = s.RotateRefreshToken(ctx, next, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorIs(t, s.RevokeRefreshToken(ctx, "unknown"), ErrNotFound)

	expired, err := s.CreateRefreshToken(ctx, u.ID, -time.Minute)
	require.NoError(t, err)
	_, _, err = s.RotateRefreshToken(ctx, expired, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestScanHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.RegisterUser(ctx, fmt.Sprintf("scans-%d", time.Now().UnixNano()), "secreto")
	require.NoError(t, err)

	scan := ScanFromRecord("TOTAL 1.234,56 €", extract.Record{Amount: "1.234,56", Confidence: 0.25})
	scan.UserID = &u.ID
	scan.FileName = "ticket.jpg"
	require.NoError(t, s.SaveScan(ctx, &scan))
	require.NotZero(t, scan.ID)

	got, err := s.GetScan(ctx, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, "ticket.jpg", got.FileName)
	assert.Equal(t, "1234.56", got.AmountValue.Decimal.StringFixed(2))

	list, err := s.ListScans(ctx, ScanFilter{UserID: &u.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, scan.ID, list[0].ID)

	_, err = s.GetScan(ctx, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMonthlySummaryAndReextract(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.RegisterUser(ctx, fmt.Sprintf("report-%d", time.Now().UnixNano()), "secreto")
	require.NoError(t, err)

	for _, raw := range []string{
		"Fecha: 05/08/2023\nTOTAL: 10,50 €",
		"Fecha: 20/08/2023\nTOTAL: 4,50 €",
		"Fecha: 01/09/2023\nTOTAL: 1,00 €",
	} {
		scan := ScanFromRecord(raw, extract.ExtractClean(raw))
		scan.UserID = &u.ID
		require.NoError(t, s.SaveScan(ctx, &scan))
	}

	months, err := s.MonthlySummary(ctx, &u.ID)
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, "2023-09", months[0].Month)
	assert.Equal(t, "2023-08", months[1].Month)
	assert.Equal(t, int64(2), months[1].Count)
	assert.Equal(t, "15.00", months[1].Total.StringFixed(2))

	stale := models.Scan{UserID: &u.ID, Strategy: models.StrategyRegex, RawText: "TOTAL: 3,00 €"}
	require.NoError(t, s.SaveScan(ctx, &stale))
	n, err := s.Reextract(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	got, err := s.GetScan(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, "3,00", got.Amount)
	assert.True(t, got.AmountValue.Valid)
}
