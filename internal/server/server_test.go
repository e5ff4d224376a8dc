package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/verte-zerg/gradelens/internal/config"
	"github.com/verte-zerg/gradelens/internal/insight"
	"github.com/verte-zerg/gradelens/internal/metrics"
	"github.com/verte-zerg/gradelens/internal/model"
	"github.com/verte-zerg/gradelens/internal/store"
)

const testSecret = "test-secret"

type fixedInsights struct{}

func (fixedInsights) Generate(_ context.Context, report model.ClassReport) insight.Insights {
	return insight.Insights{Source: insight.SourceLocal, Summary: insight.LocalSummary(report)}
}

func newTestServer(t *testing.T, secret string, withHistory bool) (*Server, *metrics.Manager) {
	t.Helper()
	cfg := config.NewServerConfig()
	cfg.JWTSecret = secret
	cfg.MaxUploadMB = 1
	m := metrics.NewManager()
	deps := Deps{Insights: fixedInsights{}, Metrics: m}
	if withHistory {
		st, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		deps.History = st
	}
	return New(cfg, deps), m
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   "instructor-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func uploadRequest(t *testing.T, filename, contentType, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
		header["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = io.WriteString(part, body)
	} else {
		_ = mw.WriteField("note", "no file here")
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(rec *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}

func TestAnalyzeEndpoint(t *testing.T) {
	Convey("Given a server with history and no auth", t, func() {
		srv, _ := newTestServer(t, "", true)
		h := srv.Handler()

		Convey("A CSV upload is analyzed and stored", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "class.csv", "text/csv", "Name,Math,English\nAlice,78,90\nBob,abc%,60\n"))

			So(rec.Code, ShouldEqual, http.StatusOK)
			var resp struct {
				ID       string            `json:"id"`
				Stats    model.ClassReport `json:"stats"`
				Insights insight.Insights  `json:"insights"`
			}
			So(decode(rec, &resp), ShouldBeNil)
			So(resp.ID, ShouldNotBeEmpty)
			So(resp.Stats.RawTotals[0].Name, ShouldEqual, "Alice")
			So(resp.Stats.RawTotals[0].Total, ShouldEqual, 168)
			So(resp.Insights.Source, ShouldEqual, insight.SourceLocal)
			So(resp.Insights.Summary, ShouldStartWith, "Summary: Class top performers: Alice (168), Bob (60).")

			Convey("And it can be fetched back", func() {
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/"+resp.ID, nil))
				So(rec.Code, ShouldEqual, http.StatusOK)
				var stored struct {
					ID         string            `json:"id"`
					SourceName string            `json:"sourceName"`
					Stats      model.ClassReport `json:"stats"`
				}
				So(decode(rec, &stored), ShouldBeNil)
				So(stored.ID, ShouldEqual, resp.ID)
				So(stored.SourceName, ShouldEqual, "class.csv")
				So(stored.Stats.SubjectKeys, ShouldResemble, []string{"Math", "English"})

				rec = httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses?last=5", nil))
				So(rec.Code, ShouldEqual, http.StatusOK)
				var runs []map[string]any
				So(decode(rec, &runs), ShouldBeNil)
				So(len(runs), ShouldEqual, 1)
				So(runs[0]["students"], ShouldEqual, 2.0)
			})
		})

		Convey("A request without a file is rejected", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "", "", ""))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(rec.Body.String(), ShouldContainSubstring, `{"error":"No file uploaded"}`)
		})

		Convey("A non-multipart body is rejected as missing a file", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(rec.Body.String(), ShouldContainSubstring, "No file uploaded")
		})

		Convey("An unsupported type is rejected", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "photo.png", "image/png", "\x89PNG"))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(rec.Body.String(), ShouldContainSubstring, `{"error":"Unsupported file type"}`)
		})

		Convey("A header-only file has no data", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "empty.csv", "text/csv", "Name,Math\n"))
			So(rec.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(rec.Body.String(), ShouldContainSubstring, `{"error":"No data"}`)
		})

		Convey("A file with a broken header is rejected", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "dup.csv", "text/csv", "Name,Math,Math\nA,1,2\n"))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(rec.Body.String(), ShouldContainSubstring, "Invalid file")
		})

		Convey("An oversized upload is rejected", func() {
			rec := httptest.NewRecorder()
			big := "Name,Math\n" + strings.Repeat("Alice,90\n", 200_000)
			h.ServeHTTP(rec, uploadRequest(t, "big.csv", "text/csv", big))
			So(rec.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})

		Convey("Overflowing totals still produce a stored JSON report", func() {
			huge := strings.Repeat("9", 308)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "big.csv", "text/csv", "Name,Math,Physics\nAlice,"+huge+","+huge+"\nBob,50,60\n"))

			So(rec.Code, ShouldEqual, http.StatusOK)
			var resp struct {
				ID    string `json:"id"`
				Stats struct {
					RawTotals []map[string]any `json:"rawTotals"`
				} `json:"stats"`
			}
			So(decode(rec, &resp), ShouldBeNil)
			So(resp.ID, ShouldNotBeEmpty)
			So(resp.Stats.RawTotals[0]["name"], ShouldEqual, "Alice")
			So(resp.Stats.RawTotals[0]["total"], ShouldBeNil)
			So(resp.Stats.RawTotals[1]["total"], ShouldEqual, 110.0)
		})

		Convey("An unknown id is not found", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/nope", nil))
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("A bad history query is rejected", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses?since=yesterday", nil))
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given a server without history", t, func() {
		srv, _ := newTestServer(t, "", false)
		h := srv.Handler()

		Convey("Analysis still returns an id", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "class.txt", "text/plain", "Name   Math\nAlice  40\nBob    20\n"))
			So(rec.Code, ShouldEqual, http.StatusOK)
			var resp map[string]any
			So(decode(rec, &resp), ShouldBeNil)
			So(resp["id"], ShouldNotBeEmpty)
		})

		Convey("History routes report it disabled", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses", nil))
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestAuthGate(t *testing.T) {
	Convey("Given a server with a jwt secret", t, func() {
		srv, _ := newTestServer(t, testSecret, false)
		h := srv.Handler()

		Convey("Requests without a token are unauthorized", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, uploadRequest(t, "class.csv", "text/csv", "Name,Math\nA,1\n"))
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
			var body errorResponse
			So(decode(rec, &body), ShouldBeNil)
			So(body.Error, ShouldEqual, "Unauthorized")
			So(body.Details, ShouldEqual, "no token provided")
		})

		Convey("Tokens signed with another secret are unauthorized", func() {
			req := uploadRequest(t, "class.csv", "text/csv", "Name,Math\nA,1\n")
			req.Header.Set("Authorization", "Bearer "+signToken(t, "other", jwt.SigningMethodHS256))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Tokens using another HMAC algorithm are unauthorized", func() {
			req := uploadRequest(t, "class.csv", "text/csv", "Name,Math\nA,1\n")
			req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.SigningMethodHS512))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("A valid token passes", func() {
			req := uploadRequest(t, "class.csv", "text/csv", "Name,Math\nA,1\n")
			req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.SigningMethodHS256))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Health and metrics stay open", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"status":"ok"`)

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestSubjectFromContext(t *testing.T) {
	Convey("The subject of a verified token is exposed", t, func() {
		claims, err := parseBearer("Bearer "+signToken(t, testSecret, jwt.SigningMethodHS256), []byte(testSecret))
		So(err, ShouldBeNil)
		So(claims.Subject, ShouldEqual, "instructor-1")

		ctx := context.WithValue(context.Background(), subjectKey{}, claims.Subject)
		So(SubjectFromContext(ctx), ShouldEqual, "instructor-1")
		So(SubjectFromContext(context.Background()), ShouldBeEmpty)
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Requests are recorded under their route pattern", t, func() {
		srv, m := newTestServer(t, "", true)
		h := srv.Handler()

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyses/abc", nil))
		So(rec.Code, ShouldEqual, http.StatusNotFound)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, uploadRequest(t, "empty.csv", "text/csv", "Name,Math\n"))

		rec = httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		body := rec.Body.String()
		So(body, ShouldContainSubstring, `gradelens_http_requests_total{method="GET",route="/api/analyses/{id}",status="404"} 1`)
		So(body, ShouldContainSubstring, `gradelens_analysis_runs_total{kind="csv",outcome="no_data"} 1`)
	})
}

func TestServeShutsDownOnCancel(t *testing.T) {
	Convey("Serve returns once its context is canceled", t, func() {
		srv, _ := newTestServer(t, "", false)
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Serve(ctx, ln) }()

		var resp *http.Response
		for i := 0; i < 50; i++ {
			resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
			if err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		So(err, ShouldBeNil)
		_ = resp.Body.Close()
		So(resp.StatusCode, ShouldEqual, http.StatusOK)

		cancel()
		select {
		case err := <-done:
			So(err, ShouldBeNil)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
	})
}

func TestWriteJSON(t *testing.T) {
	Convey("Given a response recorder", t, func() {
		rec := httptest.NewRecorder()

		Convey("An encodable body keeps its status", func() {
			writeJSON(rec, http.StatusCreated, map[string]string{"ok": "yes"})
			So(rec.Code, ShouldEqual, http.StatusCreated)
			So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(strings.TrimSpace(rec.Body.String()), ShouldEqual, `{"ok":"yes"}`)
		})

		Convey("An unencodable body becomes a server error", func() {
			writeJSON(rec, http.StatusOK, map[string]float64{"total": math.Inf(1)})
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			var resp errorResponse
			So(decode(rec, &resp), ShouldBeNil)
			So(resp.Error, ShouldEqual, "Server error")
			So(resp.Details, ShouldContainSubstring, "unsupported value")
		})
	})
}
