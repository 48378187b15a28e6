package refcorpus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
)

func TestBuildQueryURL(t *testing.T) {
	t.Parallel()

	u, err := buildQueryURL(Source{Name: "wikipedia", APIURL: "https://fr.wikipedia.org/w/api.php", IntroOnly: true}, "Castor d'Europe")
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "fr.wikipedia.org", parsed.Host)

	q := parsed.Query()
	assert.Equal(t, "Castor d'Europe", q.Get("titles"))
	assert.Equal(t, "extracts", q.Get("prop"))
	assert.Equal(t, "1", q.Get("exintro"))
	assert.Equal(t, "2", q.Get("formatversion"))

	u, err = buildQueryURL(Source{Name: "wikimini", APIURL: "https://fr.wikimini.org/w/api.php"}, "Castor")
	require.NoError(t, err)
	parsed, _ = url.Parse(u)
	assert.Empty(t, parsed.Query().Get("exintro"))
}

func TestHTMLToText(t *testing.T) {
	t.Parallel()

	html := `<p>Le <b>castor</b> est un rongeur<sup class="reference">[1]</sup>.</p>
<table><tr><td>Infobox</td></tr></table>
<p class="mw-empty-elt"></p><ul><li>barrages</li><li>huttes</li></ul><p>Fin.</p>`

	text, err := htmlToText(html)
	require.NoError(t, err)
	assert.Equal(t, "Le castor est un rongeur.\nbarrages\nhuttes\nFin.", text)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("titles") {
		case "Castor":
			_, _ = w.Write([]byte(`{"query":{"pages":[{"title":"Castor","extract":"<p>Le castor est un rongeur.</p>"}]}}`))
		case "Absent":
			_, _ = w.Write([]byte(`{"query":{"pages":[{"title":"Absent","missing":true}]}}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	e := NewExtractor(Source{Name: "wikimini", APIURL: srv.URL + "/w/api.php"}, nil)
	assert.Equal(t, "wikimini", e.Name())

	text, err := e.Extract(context.Background(), "Castor")
	require.NoError(t, err)
	assert.Equal(t, "Le castor est un rongeur.", text)

	_, err = e.Extract(context.Background(), "Absent")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	_, err = e.Extract(context.Background(), "Panne")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrNotFound)
}

func TestBuild(t *testing.T) {
	t.Parallel()

	sources := Build(DefaultSources, nil)
	require.Len(t, sources, 2)
	assert.Equal(t, "wikipedia", sources[0].Name())
	assert.Equal(t, "wikimini", sources[1].Name())
}
