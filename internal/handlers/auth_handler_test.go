package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "convertax/internal/errors"
	"convertax/internal/middleware"
	"convertax/internal/models"
	"convertax/internal/pagination"
	"convertax/internal/services"
	"convertax/internal/validator"
)

const testUserID = "0190a0e4-3333-7000-8000-000000000001"

// --- mock services ---

type mockUserService struct {
	createUserFn   func(email, password, name string) (*models.User, error)
	authenticateFn func(email, password string) (*models.User, error)
	getUserByIDFn  func(id string) (*models.User, error)
	listUsersFn    func(page pagination.PageRequest) (*pagination.Page[models.User], error)
}

func (m *mockUserService) CreateUser(_ context.Context, email, password, name string) (*models.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(email, password, name)
	}
	return &models.User{}, nil
}

func (m *mockUserService) Authenticate(_ context.Context, email, password string) (*models.User, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(email, password)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(id)
	}
	return &models.User{}, nil
}

func (m *mockUserService) ListUsers(_ context.Context, page pagination.PageRequest) (*pagination.Page[models.User], error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(page)
	}
	resp := pagination.NewPage([]models.User{}, page)
	return &resp, nil
}

var _ services.UserServicer = (*mockUserService)(nil)

type mockAuditService struct {
	actions []string
}

func (m *mockAuditService) Log(_ context.Context, _, action, _, _, _ string, _ map[string]any) {
	m.actions = append(m.actions, action)
}

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func newTestIssuer() *middleware.TokenIssuer {
	return middleware.NewTokenIssuer("test-secret", time.Hour)
}

func setupAuthRouter(handler *AuthHandler) *gin.Engine {
	r := gin.New()
	r.POST("/auth/signup", handler.Signup)
	r.POST("/auth/signin", handler.Signin)
	r.GET("/user/profile", injectUserID(testUserID), handler.GetProfile)
	r.GET("/user/all", handler.ListUsers)
	return r
}

func injectUserID(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, uid)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}

// --- tests ---

func TestAuthHandler_Signup(t *testing.T) {
	t.Run("returns 201 with token", func(t *testing.T) {
		userSvc := &mockUserService{
			createUserFn: func(email, _, name string) (*models.User, error) {
				return &models.User{Base: models.Base{ID: testUserID}, Email: email, Name: name, Role: models.RoleUser}, nil
			},
		}
		audit := &mockAuditService{}
		issuer := newTestIssuer()
		r := setupAuthRouter(NewAuthHandler(userSvc, audit, issuer))

		rec := doRequest(r, "POST", "/auth/signup",
			`{"email":"test@example.com","password":"password123","name":"John"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		token, _ := result["token"].(string)
		claims, err := issuer.Parse(token)
		if err != nil {
			t.Fatalf("expected a valid token: %v", err)
		}
		if claims.UserID != testUserID {
			t.Errorf("expected token subject %s, got %s", testUserID, claims.UserID)
		}
		user := result["user"].(map[string]interface{})
		if user["email"] != "test@example.com" {
			t.Errorf("expected email test@example.com, got %v", user["email"])
		}
		if _, leaked := user["password"]; leaked {
			t.Error("password must not be serialised")
		}
		if len(audit.actions) != 1 || audit.actions[0] != services.AuditActionSignup {
			t.Errorf("expected signup audit entry, got %v", audit.actions)
		}
	})

	t.Run("returns 400 on invalid email format", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockAuditService{}, newTestIssuer()))

		rec := doRequest(r, "POST", "/auth/signup", `{"email":"not-an-email","password":"password123"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns 400 on short password", func(t *testing.T) {
		r := setupAuthRouter(NewAuthHandler(&mockUserService{}, &mockAuditService{}, newTestIssuer()))

		rec := doRequest(r, "POST", "/auth/signup", `{"email":"test@example.com","password":"short"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns 409 on duplicate email", func(t *testing.T) {
		userSvc := &mockUserService{
			createUserFn: func(_, _, _ string) (*models.User, error) {
				return nil, apperrors.ErrDuplicateEmail
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}, newTestIssuer()))

		rec := doRequest(r, "POST", "/auth/signup", `{"email":"dup@example.com","password":"password123"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "DUPLICATE_EMAIL")
	})
}

func TestAuthHandler_Signin(t *testing.T) {
	t.Run("returns 200 with token", func(t *testing.T) {
		userSvc := &mockUserService{
			authenticateFn: func(email, _ string) (*models.User, error) {
				return &models.User{Base: models.Base{ID: testUserID}, Email: email, Role: models.RoleAdmin}, nil
			},
		}
		issuer := newTestIssuer()
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}, issuer))

		rec := doRequest(r, "POST", "/auth/signin", `{"email":"a@example.com","password":"password123"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		claims, err := issuer.Parse(parseJSON(t, rec)["token"].(string))
		if err != nil {
			t.Fatalf("expected a valid token: %v", err)
		}
		if claims.Role != models.RoleAdmin {
			t.Errorf("expected admin role claim, got %s", claims.Role)
		}
	})

	t.Run("returns 401 on bad credentials", func(t *testing.T) {
		userSvc := &mockUserService{
			authenticateFn: func(_, _ string) (*models.User, error) {
				return nil, apperrors.ErrInvalidCredentials
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}, newTestIssuer()))

		rec := doRequest(r, "POST", "/auth/signin", `{"email":"a@example.com","password":"nope"}`)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_CREDENTIALS")
	})
}

func TestAuthHandler_GetProfile(t *testing.T) {
	t.Run("returns the caller", func(t *testing.T) {
		var requested string
		userSvc := &mockUserService{
			getUserByIDFn: func(id string) (*models.User, error) {
				requested = id
				return &models.User{Base: models.Base{ID: id}, Email: "me@example.com"}, nil
			},
		}
		r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}, newTestIssuer()))

		rec := doRequest(r, "GET", "/user/profile", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if requested != testUserID {
			t.Errorf("expected lookup of %s, got %s", testUserID, requested)
		}
	})

	t.Run("returns 401 without auth", func(t *testing.T) {
		handler := NewAuthHandler(&mockUserService{}, &mockAuditService{}, newTestIssuer())
		r := gin.New()
		r.GET("/user/profile", handler.GetProfile)

		rec := doRequest(r, "GET", "/user/profile", "")

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestAuthHandler_ListUsers(t *testing.T) {
	userSvc := &mockUserService{
		listUsersFn: func(page pagination.PageRequest) (*pagination.Page[models.User], error) {
			resp := pagination.NewPage([]models.User{{Base: models.Base{ID: testUserID}, Email: "a@example.com", Password: "hash"}}, page)
			return &resp, nil
		},
	}
	r := setupAuthRouter(NewAuthHandler(userSvc, &mockAuditService{}, newTestIssuer()))

	rec := doRequest(r, "GET", "/user/all?page=1&pageSize=5", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "hash") {
		t.Error("password hash must not be returned")
	}
	result := parseJSON(t, rec)
	if result["page_size"] != float64(5) {
		t.Errorf("expected page_size 5, got %v", result["page_size"])
	}
}
