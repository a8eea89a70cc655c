package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"walletid/internal/identity/service"
	"walletid/internal/identity/store"
	"walletid/pkg/testutil"
)

// HandlerSuite exercises the HTTP surface against a real service backed by
// the in-memory store.
type HandlerSuite struct {
	suite.Suite
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	svc, err := service.New(store.NewInMemoryStore())
	s.Require().NoError(err)

	h := New(svc, slog.New(slog.DiscardHandler))
	r := chi.NewRouter()
	h.Register(r)
	h.RegisterAdmin(r)
	s.router = r
}

func wallet(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewRequestWithBody(s.T(), method, path, body))
}

func decode[T any](s *HandlerSuite, rec *httptest.ResponseRecorder) T {
	return *testutil.UnmarshalResponse[T](s.T(), rec)
}

func (s *HandlerSuite) TestManualEdit() {
	s.Run("applies edit and pins score", func() {
		rec := s.do(http.MethodPut, "/admin/identities/"+wallet(1), `{"twitter_handle":"@alice"}`)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		got := decode[IdentityResponse](s, rec)
		s.Equal(wallet(1), got.Wallet)
		s.Require().NotNil(got.TwitterHandle)
		s.Equal("alice", *got.TwitterHandle)
		s.Equal(100, got.DataQualityScore)
		s.True(got.TwitterVerified)
		s.Contains(got.Sources, "manual")
	})

	s.Run("invalid wallet", func() {
		rec := s.do(http.MethodPut, "/admin/identities/0xnothex", `{"lens":"bob.lens"}`)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")
	})

	s.Run("no fields", func() {
		rec := s.do(http.MethodPut, "/admin/identities/"+wallet(2), `{}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("blank field", func() {
		rec := s.do(http.MethodPut, "/admin/identities/"+wallet(2), `{"github":"   "}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed json", func() {
		rec := s.do(http.MethodPut, "/admin/identities/"+wallet(2), `not json`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestBatchThenRead() {
	body := fmt.Sprintf(`{"results":[
		{"wallet":%q,"twitter_handle":"carol","sources":["web3bio"]},
		{"wallet":%q,"farcaster":"dave","sources":["neynar","cache"]},
		{"wallet":"garbage","lens":"x.lens","sources":["web3bio"]},
		{"wallet":%q,"sources":["web3bio"]}
	]}`, wallet(10), strings.ToUpper(wallet(11)), wallet(12))

	rec := s.do(http.MethodPost, "/admin/identities/batch", body)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	result := decode[UpsertResultResponse](s, rec)
	s.Equal(2, result.Succeeded)
	s.Zero(result.Failed)
	s.Equal(2, result.Skipped)
	s.Empty(result.Errors)

	s.Run("lookup keeps request order and reports missing", func() {
		rec := s.do(http.MethodGet, fmt.Sprintf("/identities?wallet=%s&wallet=%s&wallet=%s",
			wallet(11), wallet(12), wallet(10)), "")
		s.Require().Equal(http.StatusOK, rec.Code)

		got := decode[IdentitiesResponse](s, rec)
		s.Require().Len(got.Identities, 3)
		s.Equal(wallet(11), got.Identities[0].Wallet)
		s.Equal("medium", got.Identities[0].Quality, "neynar verifies farcaster")
		s.Equal([]string{"neynar"}, got.Identities[0].Record.Sources)

		s.Equal(wallet(12), got.Identities[1].Wallet)
		s.Nil(got.Identities[1].Record)
		s.Equal("missing", got.Identities[1].Quality)
		s.True(got.Identities[1].NeedsRefresh)

		s.Equal(wallet(10), got.Identities[2].Wallet)
		s.Equal("low", got.Identities[2].Quality)
	})

	s.Run("single get", func() {
		rec := s.do(http.MethodGet, "/identities/"+wallet(10), "")
		s.Require().Equal(http.StatusOK, rec.Code)
		got := decode[IdentityWithQualityResponse](s, rec)
		s.Require().NotNil(got.Record)
		s.Equal(1, got.Record.LookupCount)
	})

	s.Run("audit trail", func() {
		rec := s.do(http.MethodGet, "/identities/"+wallet(10)+"/audit?limit=10", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		got := decode[AuditTrailResponse](s, rec)
		s.Equal(wallet(10), got.Wallet)
		s.NotEmpty(got.Entries)
		for _, e := range got.Entries {
			s.Equal("web3bio", e.ChangeSource)
		}
	})

	s.Run("stats", func() {
		rec := s.do(http.MethodGet, "/identities/stats", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		got := decode[StatsResponse](s, rec)
		s.EqualValues(2, got.TotalWallets)
		s.EqualValues(1, got.WithTwitter)
		s.EqualValues(1, got.WithFarcaster)
	})
}

func (s *HandlerSuite) TestBatchValidation() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/admin/identities/batch", `{"results":[]}`).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/admin/identities/batch",
		fmt.Sprintf(`{"results":[{"wallet":%q,"lens":"a"}],"max_retries":-1}`, wallet(1))).Code)
}

func (s *HandlerSuite) TestLookupValidation() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/identities", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/identities?wallet=0x12", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/identities/"+wallet(1)+"/audit?limit=abc", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/identities/"+wallet(1)+"/audit?limit=0", "").Code)
}

func (s *HandlerSuite) TestAdminLists() {
	rec := s.do(http.MethodPut, "/admin/identities/"+wallet(3), `{"farcaster":"erin"}`)
	s.Require().Equal(http.StatusOK, rec.Code)

	s.Run("recent manual edits", func() {
		rec := s.do(http.MethodGet, "/admin/identities/manual?limit=5", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		got := decode[ManualEditsResponse](s, rec)
		s.Require().Len(got.Records, 1)
		s.Equal(wallet(3), got.Records[0].Wallet)
	})

	s.Run("refresh candidates are empty for fresh records", func() {
		rec := s.do(http.MethodGet, "/admin/identities/refresh-candidates?limit=5&min_lookup_count=0", "")
		s.Require().Equal(http.StatusOK, rec.Code)
		got := decode[RefreshCandidatesResponse](s, rec)
		s.NotNil(got.Wallets)
		s.Empty(got.Wallets)
	})

	s.Run("bad min_lookup_count", func() {
		rec := s.do(http.MethodGet, "/admin/identities/refresh-candidates?min_lookup_count=x", "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestRefreshCandidatesAfterStaleness() {
	for i := range 2 {
		rec := s.do(http.MethodPut, "/admin/identities/"+wallet(20), fmt.Sprintf(`{"lens":"v%d.lens"}`, i))
		s.Require().Equal(http.StatusOK, rec.Code)
	}

	later := time.Now().Add(31 * 24 * time.Hour)
	req := testutil.NewRequestWithBody(s.T(), http.MethodGet, "/admin/identities/refresh-candidates?limit=10&min_lookup_count=1", "")
	rec := testutil.DoRequest(s.router, testutil.WithRequestTime(req, later))
	s.Require().Equal(http.StatusOK, rec.Code)
	got := decode[RefreshCandidatesResponse](s, rec)
	s.Equal([]string{wallet(20)}, got.Wallets)

	req = testutil.NewRequestWithBody(s.T(), http.MethodGet, "/identities/"+wallet(20), "")
	rec = testutil.DoRequest(s.router, testutil.WithRequestTime(req, later))
	single := decode[IdentityWithQualityResponse](s, rec)
	s.Equal("stale", single.Quality)
	s.True(single.NeedsRefresh)
}

func (s *HandlerSuite) TestManualEditWithActor() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPut, "/admin/identities/"+wallet(30), `{"github":"octo"}`)
	rec := testutil.DoRequest(s.router, testutil.WithActor(req, "ops@example.com"))
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/identities/"+wallet(30)+"/audit", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	got := decode[AuditTrailResponse](s, rec)
	s.Require().NotEmpty(got.Entries)
	s.Equal("manual", got.Entries[0].ChangeSource)
}
