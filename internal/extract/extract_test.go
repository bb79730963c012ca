package extract_test

import (
	"slices"
	"testing"

	"github.com/slickqa/slick-reporter/internal/extract"
	"github.com/stretchr/testify/require"
)

const outputRegex = `\[(?P<result>.*?)\](?:\[(?P<reason>.*?)\])? \| (?P<name>.*?) \| (?P<counts>.*?) \| ElapsedMS: (?P<runlength>\d+)`

func TestExtract(t *testing.T) {
	t.Parallel()
	p, err := extract.Compile(outputRegex)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"result", "reason", "name", "counts", "runlength"}, p.Groups())

	t.Run("pass line", func(t *testing.T) {
		records := slices.Collect(p.Extract("[PASS] | LoginTest | 3/3 | ElapsedMS: 142"))
		require.Len(t, records, 1)
		rec := records[0]
		require.Equal(t, "PASS", rec["result"])
		require.Equal(t, "LoginTest", rec["name"])
		require.Equal(t, "3/3", rec["counts"])
		require.Equal(t, "142", rec["runlength"])
		_, ok := rec.Lookup("reason")
		require.False(t, ok, "optional reason group must be absent")
	})

	t.Run("fail line with reason", func(t *testing.T) {
		records := slices.Collect(p.Extract("[FAIL][Timeout] | LoginTest | 2/3 | ElapsedMS: 500"))
		require.Len(t, records, 1)
		require.Equal(t, "FAIL", records[0]["result"])
		require.Equal(t, "Timeout", records[0]["reason"])
		require.Equal(t, "2/3", records[0]["counts"])
	})

	t.Run("many lines in document order", func(t *testing.T) {
		text := "noise\n" +
			"[PASS] | First | 1/1 | ElapsedMS: 10\n" +
			"more noise\n" +
			"[FAIL][Boom] | Second | 0/1 | ElapsedMS: 20\n"
		records := slices.Collect(p.Extract(text))
		require.Len(t, records, 2)
		require.Equal(t, "First", records[0]["name"])
		require.Equal(t, "Second", records[1]["name"])
	})

	t.Run("zero matches is not an error", func(t *testing.T) {
		records := slices.Collect(p.Extract("nothing recognizable here"))
		require.Empty(t, records)
	})

	t.Run("deterministic", func(t *testing.T) {
		text := "[PASS] | A | 1/1 | ElapsedMS: 1\n[PASS] | B | 1/1 | ElapsedMS: 2"
		first := slices.Collect(p.Extract(text))
		second := slices.Collect(p.Extract(text))
		require.Equal(t, first, second)
	})

	t.Run("early break", func(t *testing.T) {
		text := "[PASS] | A | 1/1 | ElapsedMS: 1\n[PASS] | B | 1/1 | ElapsedMS: 2"
		for rec := range p.Extract(text) {
			require.Equal(t, "A", rec["name"])
			break
		}
	})
}

func TestExtractBuildNumber(t *testing.T) {
	t.Parallel()
	p, err := extract.Compile(`.*-(?P<build>\d+)`)
	require.NoError(t, err)

	rec, ok := p.First("1.0.0-7")
	require.True(t, ok)
	require.Equal(t, "7", rec["build"])

	_, ok = p.First("no dash digits")
	require.False(t, ok)
}

func TestCompileError(t *testing.T) {
	t.Parallel()
	_, err := extract.Compile(`(?P<unterminated`)
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	t.Parallel()
	p, err := extract.Compile(outputRegex)
	require.NoError(t, err)

	rec := extract.Record{
		"result":    "FAIL",
		"reason":    "Timeout",
		"name":      "LoginTest",
		"counts":    "2/3",
		"runlength": "500",
	}

	t.Run("substitutes groups", func(t *testing.T) {
		out, err := p.Render("Search {name}", rec)
		require.NoError(t, err)
		require.Equal(t, "Search LoginTest", out)

		out, err = p.Render("{reason}: {counts}", rec)
		require.NoError(t, err)
		require.Equal(t, "Timeout: 2/3", out)
	})

	t.Run("unmatched optional group renders empty", func(t *testing.T) {
		out, err := p.Render("{reason}: {counts}", extract.Record{"counts": "3/3"})
		require.NoError(t, err)
		require.Equal(t, ": 3/3", out)
	})

	t.Run("undefined group fails", func(t *testing.T) {
		_, err := p.Render("{nonexistent}", rec)
		var terr *extract.TemplateError
		require.ErrorAs(t, err, &terr)
		require.Equal(t, "nonexistent", terr.Group)
	})

	t.Run("idempotent once placeholders are gone", func(t *testing.T) {
		out, err := p.Render("Search {name}", rec)
		require.NoError(t, err)
		again, err := p.Render(out, rec)
		require.NoError(t, err)
		require.Equal(t, out, again)
	})

	t.Run("escaped braces", func(t *testing.T) {
		out, err := p.Render("literal {{braces}} and {name}", rec)
		require.NoError(t, err)
		require.Equal(t, "literal {braces} and LoginTest", out)
	})

	t.Run("unterminated placeholder", func(t *testing.T) {
		_, err := p.Render("oops {name", rec)
		require.Error(t, err)
	})
}

func TestValidateTemplate(t *testing.T) {
	t.Parallel()
	p, err := extract.Compile(outputRegex)
	require.NoError(t, err)

	require.NoError(t, p.ValidateTemplate("Search {name}"))
	require.NoError(t, p.ValidateTemplate("no placeholders at all"))

	err = p.ValidateTemplate("{build}: {counts}")
	var terr *extract.TemplateError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, "build", terr.Group)
}
