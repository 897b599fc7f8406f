package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lenddash-backend/lib/chrono"
	"lenddash-backend/lib/scrapers/crm"

	"github.com/stretchr/testify/require"
)

type fakePortal struct {
	server     *httptest.Server
	loginCount int
	reportHTML string
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{}
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><form action="/doLogin">
			<input type="text" name="username">
			<input type="password" name="password">
		</form></body></html>`)
	})
	mux.HandleFunc("/doLogin", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("password") != "pw" {
			http.Redirect(w, r, "/login?failed=1", http.StatusFound)
			return
		}
		p.loginCount++
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>ok</body></html>`)
	})
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, p.reportHTML)
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) config() PortalConfig {
	return PortalConfig{
		LoginURL: p.server.URL + "/login",
		DataURL:  p.server.URL + "/report",
		Username: "ops",
		Password: "pw",
	}
}

func TestFetchFiltersToRequestedMonth(t *testing.T) {
	portal := newFakePortal(t)
	portal.reportHTML = `<html><body><table>
		<thead><tr><th>Disbursal Date</th><th>Credit By</th><th>Loan Amount</th></tr></thead>
		<tbody>
			<tr><td>07-02-2026</td><td>Asha</td><td>100</td></tr>
			<tr><td>05-03-2026</td><td>Ravi</td><td>200</td></tr>
		</tbody>
	</table></body></html>`

	src := &Source{
		Tag:      TagELI,
		Mode:     ModeDateRange,
		Config:   portal.config(),
		sessions: newSessionCache(),
	}

	// the out-of-month row must be dropped here, at the adapter;
	// the combiner does not date-filter
	records, err := src.Fetch(context.Background(), 2026, time.February)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Asha", records[0].CreditBy)
	require.Equal(t, chrono.Date{Year: 2026, Month: 2, Day: 7}, records[0].DisbursalDate)
}

func TestFetchEmptyReportIsNotAnError(t *testing.T) {
	portal := newFakePortal(t)
	portal.reportHTML = `<html><body><p>no activity</p></body></html>`

	src := &Source{
		Tag:      TagCP,
		Mode:     ModePaginated,
		Config:   portal.config(),
		sessions: newSessionCache(),
	}

	records, err := src.Fetch(context.Background(), 2026, time.February)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestFetchPropagatesLoginFailure(t *testing.T) {
	portal := newFakePortal(t)
	cfg := portal.config()
	cfg.Password = "wrong"

	src := &Source{
		Tag:      TagNBL,
		Mode:     ModeDateRange,
		Config:   cfg,
		sessions: newSessionCache(),
	}

	_, err := src.Fetch(context.Background(), 2026, time.February)
	require.ErrorIs(t, err, crm.ErrLoginFailed)
}

func TestFetchPropagatesMissingCredentials(t *testing.T) {
	portal := newFakePortal(t)
	cfg := portal.config()
	cfg.Username = ""

	src := &Source{
		Tag:      TagLR,
		Mode:     ModePaginated,
		Config:   cfg,
		sessions: newSessionCache(),
	}

	_, err := src.Fetch(context.Background(), 2026, time.February)
	require.ErrorIs(t, err, crm.ErrMissingCredentials)
}

func TestFetchReusesSession(t *testing.T) {
	portal := newFakePortal(t)
	portal.reportHTML = `<html><body><table>
		<thead><tr><th>Disbursal Date</th><th>Loan Amount</th></tr></thead>
		<tbody><tr><td>01-02-2026</td><td>50</td></tr></tbody>
	</table></body></html>`

	src := &Source{
		Tag:      TagELI,
		Mode:     ModeDateRange,
		Config:   portal.config(),
		sessions: newSessionCache(),
	}

	ctx := context.Background()
	_, err := src.Fetch(ctx, 2026, time.February)
	require.NoError(t, err)
	_, err = src.Fetch(ctx, 2026, time.February)
	require.NoError(t, err)
	require.Equal(t, 1, portal.loginCount)
}

func TestForConfigOrder(t *testing.T) {
	srcs := ForConfig(PortalConfig{}, PortalConfig{}, PortalConfig{}, PortalConfig{})
	require.Len(t, srcs, 4)
	for i, tag := range Tags {
		require.Equal(t, tag, srcs[i].Tag)
	}
	require.Equal(t, ModeDateRange, srcs[0].Mode)
	require.Equal(t, ModeDateRange, srcs[1].Mode)
	require.Equal(t, ModePaginated, srcs[2].Mode)
	require.Equal(t, ModePaginated, srcs[3].Mode)
}
