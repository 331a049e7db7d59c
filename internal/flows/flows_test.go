package flows

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/versini-org/auth-client/internal"
	"github.com/versini-org/auth-client/jwt"
	"github.com/versini-org/auth-client/remote"
	"github.com/versini-org/auth-client/store"
)

type fakeService struct {
	preAuth      func(remote.PreAuthRequest) (remote.PreAuthResponse, error)
	exchange     func(remote.ExchangeRequest) (remote.ExchangeResponse, error)
	refresh      func(remote.RefreshRequest) (remote.RefreshResponse, error)
	logout       func(remote.LogoutRequest) error
	preAuthN     atomic.Int32
	exchangeN    atomic.Int32
	refreshN     atomic.Int32
	logoutN      atomic.Int32
	lastPreAuth  remote.PreAuthRequest
	lastExchange remote.ExchangeRequest
}

func (f *fakeService) RequestPreAuthCode(_ context.Context, req remote.PreAuthRequest) (remote.PreAuthResponse, error) {
	f.preAuthN.Add(1)
	f.lastPreAuth = req
	return f.preAuth(req)
}

func (f *fakeService) ExchangeForTokens(_ context.Context, req remote.ExchangeRequest) (remote.ExchangeResponse, error) {
	f.exchangeN.Add(1)
	f.lastExchange = req
	return f.exchange(req)
}

func (f *fakeService) RefreshTokens(_ context.Context, req remote.RefreshRequest) (remote.RefreshResponse, error) {
	f.refreshN.Add(1)
	return f.refresh(req)
}

func (f *fakeService) NotifyLogout(_ context.Context, req remote.LogoutRequest) error {
	f.logoutN.Add(1)
	return f.logout(req)
}

func fixedPKCE() (internal.PKCEPair, error) {
	return internal.PKCEPair{Verifier: "V1", Challenge: "CH1"}, nil
}

func okExchange(remote.ExchangeRequest) (remote.ExchangeResponse, error) {
	return remote.ExchangeResponse{Status: true, IDToken: "I1", AccessToken: "A1", RefreshToken: "R1", UserID: "u2"}, nil
}

func TestRunLoginPasswordGrant(t *testing.T) {
	svc := &fakeService{exchange: okExchange}
	res := RunLogin(context.Background(),
		LoginRequest{Username: "bob", Password: "pw", Grant: remote.GrantPassword},
		"n1", "c1", "7d", LoginDeps{Service: svc, NewPKCEPair: fixedPKCE})

	if res.Failure != LoginFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if res.Tokens != (store.Triple{IDToken: "I1", AccessToken: "A1", RefreshToken: "R1"}) {
		t.Fatalf("unexpected tokens %+v", res.Tokens)
	}
	if res.UserID != "u2" || res.Username != "bob" {
		t.Fatalf("unexpected user %q/%q", res.UserID, res.Username)
	}
	if svc.preAuthN.Load() != 0 {
		t.Fatal("password grant must not request a pre-auth code")
	}
	ex := svc.lastExchange
	if ex.Nonce != "n1" || ex.ClientID != "c1" || ex.SessionExpiration != "7d" || ex.Type != remote.GrantPassword {
		t.Fatalf("unexpected exchange request %+v", ex)
	}
	if ex.Code != "" || ex.CodeVerifier != "" {
		t.Fatal("password grant must not send code or verifier")
	}
}

func TestRunLoginCodeGrantSendsChallengeThenVerifier(t *testing.T) {
	svc := &fakeService{
		preAuth: func(remote.PreAuthRequest) (remote.PreAuthResponse, error) {
			return remote.PreAuthResponse{Status: true, Code: "C1"}, nil
		},
		exchange: okExchange,
	}
	res := RunLogin(context.Background(),
		LoginRequest{Username: "bob", Password: "pw", Grant: remote.GrantCode},
		"n1", "c1", "", LoginDeps{Service: svc, NewPKCEPair: fixedPKCE})

	if res.Failure != LoginFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if svc.lastPreAuth != (remote.PreAuthRequest{Nonce: "n1", ClientID: "c1", CodeChallenge: "CH1"}) {
		t.Fatalf("unexpected preauth request %+v", svc.lastPreAuth)
	}
	if svc.lastExchange.Code != "C1" || svc.lastExchange.CodeVerifier != "V1" || svc.lastExchange.Type != remote.GrantCode {
		t.Fatalf("unexpected exchange request %+v", svc.lastExchange)
	}
}

func TestRunLoginCodeGrantPreAuthRejected(t *testing.T) {
	svc := &fakeService{
		preAuth: func(remote.PreAuthRequest) (remote.PreAuthResponse, error) {
			return remote.PreAuthResponse{Status: false}, nil
		},
		exchange: okExchange,
	}
	res := RunLogin(context.Background(),
		LoginRequest{Username: "bob", Password: "pw", Grant: remote.GrantCode},
		"n1", "c1", "", LoginDeps{Service: svc, NewPKCEPair: fixedPKCE})

	if res.Failure != LoginFailureRejected {
		t.Fatalf("expected rejected, got %v", res.Failure)
	}
	if svc.exchangeN.Load() != 0 {
		t.Fatal("exchange must not run after pre-auth rejection")
	}
	if !res.Tokens.Empty() {
		t.Fatal("expected no tokens")
	}
}

func TestRunLoginFailureKinds(t *testing.T) {
	transportErr := errors.New("dial tcp: refused")

	cases := []struct {
		name  string
		grant remote.GrantType
		svc   *fakeService
		pkce  func() (internal.PKCEPair, error)
		want  LoginFailureKind
	}{
		{
			name:  "unsupported grant",
			grant: "MAGIC",
			svc:   &fakeService{exchange: okExchange},
			want:  LoginFailureUnsupportedGrant,
		},
		{
			name:  "pkce generator fails",
			grant: remote.GrantCode,
			svc:   &fakeService{exchange: okExchange},
			pkce:  func() (internal.PKCEPair, error) { return internal.PKCEPair{}, errors.New("no entropy") },
			want:  LoginFailurePKCE,
		},
		{
			name:  "preauth transport",
			grant: remote.GrantCode,
			svc: &fakeService{preAuth: func(remote.PreAuthRequest) (remote.PreAuthResponse, error) {
				return remote.PreAuthResponse{}, transportErr
			}},
			want: LoginFailureTransport,
		},
		{
			name:  "preauth success without code",
			grant: remote.GrantCode,
			svc: &fakeService{preAuth: func(remote.PreAuthRequest) (remote.PreAuthResponse, error) {
				return remote.PreAuthResponse{Status: true}, nil
			}},
			want: LoginFailureRejected,
		},
		{
			name:  "exchange transport",
			grant: remote.GrantPassword,
			svc: &fakeService{exchange: func(remote.ExchangeRequest) (remote.ExchangeResponse, error) {
				return remote.ExchangeResponse{}, transportErr
			}},
			want: LoginFailureTransport,
		},
		{
			name:  "bad credentials",
			grant: remote.GrantPassword,
			svc: &fakeService{exchange: func(remote.ExchangeRequest) (remote.ExchangeResponse, error) {
				return remote.ExchangeResponse{Status: false}, nil
			}},
			want: LoginFailureRejected,
		},
		{
			name:  "missing user id",
			grant: remote.GrantPassword,
			svc: &fakeService{exchange: func(remote.ExchangeRequest) (remote.ExchangeResponse, error) {
				return remote.ExchangeResponse{Status: true, IDToken: "I", AccessToken: "A", RefreshToken: "R"}, nil
			}},
			want: LoginFailureIncomplete,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pkce := tc.pkce
			if pkce == nil {
				pkce = fixedPKCE
			}
			var warned bool
			res := RunLogin(context.Background(),
				LoginRequest{Username: "bob", Password: "pw", Grant: tc.grant},
				"n1", "c1", "", LoginDeps{
					Service:     tc.svc,
					NewPKCEPair: pkce,
					Warn:        func(string, ...any) { warned = true },
				})
			if res.Failure != tc.want {
				t.Fatalf("expected %v, got %v (%v)", tc.want, res.Failure, res.Err)
			}
			if res.Err == nil {
				t.Fatal("expected an error alongside the failure kind")
			}
			if tc.want == LoginFailureTransport && !errors.Is(res.Err, transportErr) {
				t.Fatalf("expected transport error preserved, got %v", res.Err)
			}
			if tc.want == LoginFailureIncomplete && !warned {
				t.Fatal("expected warning for incomplete response")
			}
			if !res.Tokens.Empty() {
				t.Fatal("failed login must not return tokens")
			}
		})
	}
}

func TestRunRefresh(t *testing.T) {
	var got remote.RefreshRequest
	svc := &fakeService{refresh: func(req remote.RefreshRequest) (remote.RefreshResponse, error) {
		got = req
		return remote.RefreshResponse{Status: remote.RefreshSuccess, NewAccessToken: "A2", NewRefreshToken: "R2"}, nil
	}}

	res := RunRefresh(context.Background(), RefreshInput{ClientID: "c1", UserID: "u1", Nonce: "n1", RefreshToken: "R1"}, RefreshDeps{Service: svc})
	if res.Failure != RefreshFailureNone || res.AccessToken != "A2" || res.RefreshToken != "R2" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got != (remote.RefreshRequest{ClientID: "c1", UserID: "u1", Nonce: "n1", RefreshToken: "R1"}) {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestRunRefreshFailures(t *testing.T) {
	svc := &fakeService{refresh: func(remote.RefreshRequest) (remote.RefreshResponse, error) {
		return remote.RefreshResponse{Status: remote.RefreshFailure}, nil
	}}
	if res := RunRefresh(context.Background(), RefreshInput{RefreshToken: "R1"}, RefreshDeps{Service: svc}); res.Failure != RefreshFailureRejected {
		t.Fatalf("expected rejected, got %v", res.Failure)
	}

	if res := RunRefresh(context.Background(), RefreshInput{}, RefreshDeps{Service: svc}); res.Failure != RefreshFailureMissingToken {
		t.Fatalf("expected missing token, got %v", res.Failure)
	}
	if svc.refreshN.Load() != 1 {
		t.Fatalf("missing refresh token must not reach the service, calls=%d", svc.refreshN.Load())
	}

	svc.refresh = func(remote.RefreshRequest) (remote.RefreshResponse, error) {
		return remote.RefreshResponse{}, remote.ErrTransport
	}
	res := RunRefresh(context.Background(), RefreshInput{RefreshToken: "R1"}, RefreshDeps{Service: svc})
	if res.Failure != RefreshFailureTransport || !errors.Is(res.Err, remote.ErrTransport) {
		t.Fatalf("expected transport failure, got %v (%v)", res.Failure, res.Err)
	}

	svc.refresh = func(remote.RefreshRequest) (remote.RefreshResponse, error) {
		return remote.RefreshResponse{Status: remote.RefreshSuccess, NewAccessToken: "A2"}, nil
	}
	if res := RunRefresh(context.Background(), RefreshInput{RefreshToken: "R1"}, RefreshDeps{Service: svc}); res.Failure != RefreshFailureIncomplete {
		t.Fatalf("expected incomplete, got %v", res.Failure)
	}
}

type validatorFunc func(ctx context.Context, token string) (*jwt.Claims, error)

func (f validatorFunc) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	return f(ctx, token)
}

func claimsFor(sub, username string) *jwt.Claims {
	c := &jwt.Claims{Username: username}
	c.Subject = sub
	return c
}

func TestValidateToken(t *testing.T) {
	ctx := context.Background()
	good := validatorFunc(func(context.Context, string) (*jwt.Claims, error) { return claimsFor("u1", "alice"), nil })

	c, ok := ValidateToken(ctx, good, "tok")
	if !ok || c.UserID() != "u1" || c.Username != "alice" {
		t.Fatalf("expected valid claims, got %+v ok=%v", c, ok)
	}

	if _, ok := ValidateToken(ctx, good, ""); ok {
		t.Fatal("empty token must be invalid")
	}
	if _, ok := ValidateToken(ctx, nil, "tok"); ok {
		t.Fatal("nil validator must be invalid")
	}

	noSubject := validatorFunc(func(context.Context, string) (*jwt.Claims, error) { return claimsFor(" ", "alice"), nil })
	if _, ok := ValidateToken(ctx, noSubject, "tok"); ok {
		t.Fatal("blank subject must be invalid")
	}

	failing := validatorFunc(func(context.Context, string) (*jwt.Claims, error) { return nil, errors.New("expired") })
	if _, ok := ValidateToken(ctx, failing, "tok"); ok {
		t.Fatal("validator error must be invalid")
	}

	panicking := validatorFunc(func(context.Context, string) (*jwt.Claims, error) { panic("decode") })
	if c, ok := ValidateToken(ctx, panicking, "tok"); ok || c != nil {
		t.Fatal("validator panic must be invalid")
	}
}

func TestRunLogoutNotifySkipsWithoutTokens(t *testing.T) {
	svc := &fakeService{logout: func(remote.LogoutRequest) error { return nil }}
	res := RunLogoutNotify(context.Background(), remote.LogoutRequest{ClientID: "c1"}, LogoutDeps{Service: svc, MaxAttempts: 3})
	if !res.Skipped || svc.logoutN.Load() != 0 {
		t.Fatalf("expected skip, got %+v calls=%d", res, svc.logoutN.Load())
	}
}

func TestRunLogoutNotifyRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	svc := &fakeService{logout: func(remote.LogoutRequest) error {
		if calls.Add(1) < 3 {
			return remote.ErrTransport
		}
		return nil
	}}
	res := RunLogoutNotify(context.Background(),
		remote.LogoutRequest{ClientID: "c1", RefreshToken: "R1"},
		LogoutDeps{Service: svc, MaxAttempts: 5, InitialInterval: time.Millisecond, Timeout: 5 * time.Second})
	if res.Err != nil || res.Attempts != 3 {
		t.Fatalf("expected success on third attempt, got %+v", res)
	}
}

func TestRunLogoutNotifyGivesUp(t *testing.T) {
	svc := &fakeService{logout: func(remote.LogoutRequest) error { return remote.ErrTransport }}
	res := RunLogoutNotify(context.Background(),
		remote.LogoutRequest{ClientID: "c1", AccessToken: "A1"},
		LogoutDeps{Service: svc, MaxAttempts: 2, InitialInterval: time.Millisecond, Timeout: 5 * time.Second})
	if !errors.Is(res.Err, remote.ErrTransport) || res.Attempts != 2 {
		t.Fatalf("expected two failed attempts, got %+v", res)
	}
}
