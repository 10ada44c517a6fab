package application

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func storedApplication(t *testing.T, id, nationalID string, submittedAt time.Time) *Application {
	t.Helper()
	in := validInput()
	in.NationalID = nationalID
	app, err := NewApplication(in, validDocument(), submittedAt)
	require.NoError(t, err)
	app.ApplicationID = id
	return app
}

// testRepositoryContract exercises the behaviour every ApplicationRepository must share
func testRepositoryContract(t *testing.T, repo ApplicationRepository) {
	ctx := context.Background()

	first := storedApplication(t, "SG-2025-000001", "8267411571", testNow)
	require.NoError(t, repo.Create(ctx, first))

	t.Run("find by application id", func(t *testing.T) {
		got, err := repo.FindByApplicationID(ctx, "SG-2025-000001")
		require.NoError(t, err)
		assert.Equal(t, first.NationalID, got.NationalID)
		assert.Equal(t, first.Address, got.Address)
		assert.Equal(t, first.AddressProof.FileName, got.AddressProof.FileName)
		assert.True(t, first.SubmittedAt.Equal(got.SubmittedAt))
		require.Len(t, got.StatusHistory, 1)
		assert.Empty(t, got.Purchases)

		_, err = repo.FindByApplicationID(ctx, "SG-2025-999999")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate application id", func(t *testing.T) {
		clash := storedApplication(t, "SG-2025-000001", "1111111111", testNow)
		err := repo.Create(ctx, clash)
		assert.ErrorIs(t, err, errDuplicateApplicationID)
	})

	t.Run("second active application", func(t *testing.T) {
		again := storedApplication(t, "SG-2025-000002", "8267411571", testNow.Add(time.Minute))
		err := repo.Create(ctx, again)
		var dup *DuplicateApplicationError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "SG-2025-000001", dup.ExistingApplicationID)
	})

	t.Run("resubmission after rejection", func(t *testing.T) {
		app, err := repo.FindByApplicationID(ctx, "SG-2025-000001")
		require.NoError(t, err)
		require.NoError(t, app.ApplyStatus(StatusRejected, "Blurry proof", "", testNow.Add(time.Hour)))
		require.NoError(t, repo.Update(ctx, app))

		_, err = repo.FindActiveByNationalID(ctx, "8267411571")
		assert.ErrorIs(t, err, ErrNotFound)

		again := storedApplication(t, "SG-2025-000003", "8267411571", testNow.Add(2*time.Hour))
		require.NoError(t, repo.Create(ctx, again))

		active, err := repo.FindActiveByNationalID(ctx, "8267411571")
		require.NoError(t, err)
		assert.Equal(t, "SG-2025-000003", active.ApplicationID)

		latest, err := repo.FindLatestByNationalID(ctx, "8267411571")
		require.NoError(t, err)
		assert.Equal(t, "SG-2025-000003", latest.ApplicationID)

		all, err := repo.FindByNationalID(ctx, "8267411571")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "SG-2025-000003", all[0].ApplicationID)
		assert.Equal(t, StatusRejected, all[1].Status)
		require.Len(t, all[1].StatusHistory, 2)
		assert.Equal(t, "Blurry proof", all[1].StatusHistory[1].Remarks)
	})

	t.Run("reactivating a rejected application while another is active", func(t *testing.T) {
		rejected, err := repo.FindByApplicationID(ctx, "SG-2025-000001")
		require.NoError(t, err)
		require.NoError(t, rejected.ApplyStatus(StatusPending, "Reopened", "", testNow.Add(150*time.Minute)))

		err = repo.Update(ctx, rejected)
		var dup *DuplicateApplicationError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "SG-2025-000003", dup.ExistingApplicationID)

		got, err := repo.FindByApplicationID(ctx, "SG-2025-000001")
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, got.Status)

		active, err := repo.FindActiveByNationalID(ctx, "8267411571")
		require.NoError(t, err)
		assert.Equal(t, "SG-2025-000003", active.ApplicationID)
	})

	t.Run("updating the active application keeps it active", func(t *testing.T) {
		app, err := repo.FindByApplicationID(ctx, "SG-2025-000003")
		require.NoError(t, err)
		require.NoError(t, app.ApplyStatus(StatusUnderReview, "", "", testNow.Add(160*time.Minute)))
		require.NoError(t, repo.Update(ctx, app))
	})

	t.Run("purchase ledger persists", func(t *testing.T) {
		app, err := repo.FindByApplicationID(ctx, "SG-2025-000003")
		require.NoError(t, err)
		_, err = app.ApplyPurchase(PurchaseInput{TransactionID: "TXN-1", ProductName: "Rice", AmountDeducted: 500}, testNow.Add(3*time.Hour))
		require.NoError(t, err)
		require.NoError(t, repo.Update(ctx, app))

		got, err := repo.FindByApplicationID(ctx, "SG-2025-000003")
		require.NoError(t, err)
		assert.Equal(t, StatusUnderReview, got.Status)
		assert.Equal(t, "INV 49500", got.GrantAmount)
		assert.Equal(t, StatusPurchaseCompleted, got.StatusHistory[len(got.StatusHistory)-1].Status)
		require.Len(t, got.Purchases, 1)
		assert.Equal(t, "TXN-1", got.Purchases[0].TransactionID)
	})

	t.Run("update missing application", func(t *testing.T) {
		ghost := storedApplication(t, "SG-2025-777777", "2222222222", testNow)
		assert.ErrorIs(t, repo.Update(ctx, ghost), ErrNotFound)
	})

	t.Run("list pages newest first", func(t *testing.T) {
		for i := 4; i <= 6; i++ {
			app := storedApplication(t, FormatApplicationID(2025, int64(i)), fmt.Sprintf("300000000%d", i), testNow.Add(time.Duration(i)*time.Hour))
			require.NoError(t, repo.Create(ctx, app))
		}

		apps, total, err := repo.List(ctx, Filter{Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		require.Len(t, apps, 2)
		assert.Equal(t, "SG-2025-000006", apps[0].ApplicationID)
		assert.Equal(t, "SG-2025-000005", apps[1].ApplicationID)

		apps, _, err = repo.List(ctx, Filter{Page: 3, Limit: 2})
		require.NoError(t, err)
		require.Len(t, apps, 1)
		assert.Equal(t, "SG-2025-000001", apps[0].ApplicationID)

		apps, total, err = repo.List(ctx, Filter{Status: StatusPending})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, apps, 3)

		apps, total, err = repo.List(ctx, Filter{Page: 9})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Empty(t, apps)
	})
}

func TestInMemoryApplicationRepository(t *testing.T) {
	testRepositoryContract(t, NewInMemoryApplicationRepository())
}

func TestInMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewInMemoryApplicationRepository()
	ctx := context.Background()
	app := storedApplication(t, "SG-2025-000001", "8267411571", testNow)
	require.NoError(t, repo.Create(ctx, app))

	got, err := repo.FindByApplicationID(ctx, app.ApplicationID)
	require.NoError(t, err)
	got.Status = StatusApproved
	got.StatusHistory[0].Remarks = "changed"

	again, err := repo.FindByApplicationID(ctx, app.ApplicationID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
	assert.Equal(t, "Application submitted", again.StatusHistory[0].Remarks)
}

func setupTestDatabase(t *testing.T) *pgxpool.Pool {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithInitScripts(filepath.Join("../../migrations", "grant_db.sql")),
		postgres.WithDatabase("grant_db"),
		postgres.WithUsername("grant"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func setupTestMongo(t *testing.T) *mongo.Database {
	if testing.Short() {
		t.Skip("skipping mongo container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	endpoint, err := container.PortEndpoint(ctx, "27017/tcp", "mongodb")
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Disconnect(ctx)
	})
	return client.Database("grant_db")
}

func TestPostgresApplicationRepository(t *testing.T) {
	pool := setupTestDatabase(t)
	testRepositoryContract(t, NewPostgresApplicationRepository(pool))
}

func TestPostgresSequence(t *testing.T) {
	pool := setupTestDatabase(t)
	seq := NewPostgresSequence(pool)
	ctx := context.Background()

	first, err := seq.Next(ctx)
	require.NoError(t, err)
	second, err := seq.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}

func TestMongoApplicationRepository(t *testing.T) {
	db := setupTestMongo(t)
	repo := NewMongoApplicationRepository(db)
	require.NoError(t, repo.EnsureIndexes(context.Background()))
	testRepositoryContract(t, repo)
}

func TestMongoSequence(t *testing.T) {
	db := setupTestMongo(t)
	seq := NewMongoSequence(db)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestInMemorySequence(t *testing.T) {
	seq := NewInMemorySequence()
	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
