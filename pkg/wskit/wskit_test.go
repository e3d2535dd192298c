package wskit_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/fgrzl/eventkit/pkg/auth/jwtkit"
	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/eventkit/pkg/invoke"
	"github.com/fgrzl/eventkit/pkg/wskit"
	"github.com/fgrzl/json/polymorphic"
	"github.com/fgrzl/mux"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("top-secret-test-key")

func newAuthorizedToken(t *testing.T, scope string) string {
	t.Helper()
	signer := &jwtkit.HMAC256Signer{Secret: secret}
	token, err := signer.CreateToken(jwt.MapClaims{
		"sub":    "tester",
		"scopes": scope,
		"exp":    time.Now().Add(time.Minute).Unix(),
	}, time.Minute)
	require.NoError(t, err)
	return token
}

// greetRequest/greetResponse implement polymorphic.Polymorphic and are
// used by pointer, per Open Question resolution 6 in DESIGN.md: a
// payload crossing pkg/transport.Wire's JSON boundary needs a
// registered discriminator to come back as its concrete type rather
// than a bare map, and polymorphic.Register always reconstructs the
// registered pointer type.
type greetRequest struct{ Name string }

func (r *greetRequest) GetDiscriminator() string { return "eventkit://test/v1/greet_request" }

type greetResponse struct{ Greeting string }

func (r *greetResponse) GetDiscriminator() string { return "eventkit://test/v1/greet_response" }

func init() {
	polymorphic.Register(func() *greetRequest { return &greetRequest{} })
	polymorphic.Register(func() *greetResponse { return &greetResponse{} })
}

func TestWebSocketRoundTripsUnaryInvokeForAuthorizedScope(t *testing.T) {
	validator := &jwtkit.HMAC256Validator{Secret: secret}

	server := bus.NewContext()
	invoke.DefineInvokeHandler(server, "greet", func(_ context.Context, req *greetRequest) (*greetResponse, error) {
		return &greetResponse{Greeting: "hello " + req.Name}, nil
	})

	router := mux.NewRouter(nil)
	router.UseAuthentication(&mux.AuthenticationOptions{Validate: validator.Validate})
	router.UseAuthorization(&mux.AuthorizationOptions{})
	wskit.ConfigureWebSocketServer(router, server)

	httpServer := httptest.NewServer(router)
	defer httpServer.Close()

	u, err := url.Parse(httpServer.URL)
	require.NoError(t, err)

	token := newAuthorizedToken(t, wskit.ScopeAll)
	client, stop, err := wskit.Dial("ws://"+u.Host+"/ws", token)
	require.NoError(t, err)
	defer stop()

	call := invoke.DefineInvoke[*greetRequest, *greetResponse](client, "greet")
	res, err := call.Call(context.Background(), &greetRequest{Name: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello ada", res.Greeting)
}

func TestWebSocketRejectsFrameOutsideSessionScope(t *testing.T) {
	validator := &jwtkit.HMAC256Validator{Secret: secret}

	server := bus.NewContext()
	handlerCalled := make(chan struct{}, 1)
	invoke.DefineInvokeHandler(server, "admin.greet", func(_ context.Context, req *greetRequest) (*greetResponse, error) {
		handlerCalled <- struct{}{}
		return &greetResponse{Greeting: "hello " + req.Name}, nil
	})

	router := mux.NewRouter(nil)
	router.UseAuthentication(&mux.AuthenticationOptions{Validate: validator.Validate})
	router.UseAuthorization(&mux.AuthorizationOptions{})
	wskit.ConfigureWebSocketServer(router, server)

	httpServer := httptest.NewServer(router)
	defer httpServer.Close()

	u, err := url.Parse(httpServer.URL)
	require.NoError(t, err)

	token := newAuthorizedToken(t, wskit.ScopePrefix+"public")
	client, stop, err := wskit.Dial("ws://"+u.Host+"/ws", token)
	require.NoError(t, err)
	defer stop()

	call := invoke.DefineInvoke[*greetRequest, *greetResponse](client, "admin.greet")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = call.Call(ctx, &greetRequest{Name: "ada"})
	require.Error(t, err)

	select {
	case <-handlerCalled:
		t.Fatal("handler should not have been invoked for an out-of-scope tag")
	default:
	}
}
