package testutils

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"

	"github.com/fikriaf/ordo-backend/pkg/auth"
	"github.com/fikriaf/ordo-backend/pkg/config"
	"github.com/fikriaf/ordo-backend/pkg/handlers"
	"github.com/fikriaf/ordo-backend/pkg/metrics"
	"github.com/fikriaf/ordo-backend/pkg/models"
	"github.com/fikriaf/ordo-backend/pkg/server"

	"github.com/d4l-data4life/go-svc/pkg/db"
	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// TestJWTSecret signs tokens in tests, shared by issuer and validator
const TestJWTSecret = "test-signing-secret-for-ordo"

// TestPassword is the plaintext password of every user created by the helpers
const TestPassword = "correct-horse-battery-staple"

// CreateTestUser persists a user with a bcrypt hash of TestPassword
func CreateTestUser(t *testing.T, username string, autonomy models.AutonomyLevel) models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	hashStr := string(hash)
	user := models.User{
		Username:     &username,
		PasswordHash: &hashStr,
		Autonomy:     autonomy,
	}
	require.NoError(t, models.CreateUser(&user))
	return user
}

// InitDBWithTestUser inits a transactional test db with one registered user
func InitDBWithTestUser(t *testing.T) models.User {
	models.InitializeTestDB(t)
	return CreateTestUser(t, "tester", models.AutonomyLevelSemi)
}

// AddTestDataToDB seeds a persistent demo user for local development
func AddTestDataToDB() {
	username := "demo"
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.DefaultCost)
	if err != nil {
		logging.LogErrorf(err, "Error in test data setup")
		return
	}
	hashStr := string(hash)
	user := models.User{
		Username:     &username,
		PasswordHash: &hashStr,
		Autonomy:     models.AutonomyLevelSemi,
	}
	if err := models.CreateUser(&user); err != nil && err != models.ErrUserDuplicateUsername {
		logging.LogErrorf(err, "Error in test data setup")
	}
}

// GetRequestPayload converts a given object into a reader of that obect as json payload
func GetRequestPayload(payload interface{}) io.Reader {
	bytes, _ := json.Marshal(payload)
	return strings.NewReader(string(bytes))
}

// GetTestIssuer returns a token issuer over TestJWTSecret
func GetTestIssuer(t *testing.T) *auth.Issuer {
	issuer, err := auth.NewIssuer([]byte(TestJWTSecret))
	require.NoError(t, err)
	return issuer
}

// BearerFor returns an Authorization header value for the given user
func BearerFor(t *testing.T, userID uuid.UUID) string {
	token, err := GetTestIssuer(t).IssueToken(userID)
	require.NoError(t, err)
	return "Bearer " + token
}

// GetTestMockServer creates the mocked server for tests. Zero fields in
// deps are filled with working defaults where one exists.
func GetTestMockServer(t *testing.T, deps handlers.Deps) *server.Server {
	models.InitializeTestDB(t)
	if deps.DB == nil {
		deps.DB = db.Get()
	}
	if deps.Issuer == nil {
		deps.Issuer = GetTestIssuer(t)
	}
	if deps.TokenValidator == nil {
		validator, err := auth.NewLocalJWTValidator([]byte(TestJWTSecret))
		require.NoError(t, err)
		deps.TokenValidator = validator
	}
	corsOptions := config.CorsConfig([]string{"localhost"})
	srv := server.NewServer("TEST_SERVER", cors.New(corsOptions), 1, 10*time.Second)

	server.SetupRoutes(srv.Mux(), deps)
	metrics.AddBuildInfoMetric()
	return srv
}

type stringer interface {
	String() string
}

// StringSort sorts slices of elements by string representation method for deterministic tests
func StringSort[T stringer](slice []T) {
	sort.SliceStable(slice, func(i, j int) bool {
		return slice[i].String() < slice[j].String()
	})
}

func MustJSON[T any](object T) datatypes.JSON {
	bytes, err := json.Marshal(object)
	if err != nil {
		logging.LogErrorfCtx(context.Background(), err, "failed marshalling to JSON")
		return nil
	}
	return bytes
}

func Pointerfy[T any](thing T) *T {
	return &thing
}
