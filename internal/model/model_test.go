package model

import "testing"

func TestArticleIDIsDeterministic(t *testing.T) {
	url := "https://careers.arsenal.com/jobs/5434108-research-engineer"
	a := ArticleID(url)
	b := ArticleID(url)
	if a != b {
		t.Fatalf("same URL produced different ids: %q vs %q", a, b)
	}
	if want := "careers_arsenal_com_jobs_5434108-research-engineer"; a != want {
		t.Errorf("ArticleID = %q, want %q", a, want)
	}
}

func TestArticleIDIgnoresQueryString(t *testing.T) {
	a := ArticleID("https://example.com/post/1?utm_source=rss")
	b := ArticleID("https://example.com/post/1?ref=homepage")
	c := ArticleID("https://example.com/post/1")
	if a != c || b != c {
		t.Errorf("query string changed the id: %q %q %q", a, b, c)
	}
}

func TestArticleIDDistinguishesURLs(t *testing.T) {
	a := ArticleID("https://example.com/post/1")
	b := ArticleID("https://example.com/post/2")
	if a == b {
		t.Errorf("different URLs collided on id %q", a)
	}
}

func TestCleanURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/a?b=c&d=e": "https://example.com/a",
		"https://example.com/a":         "https://example.com/a",
		"":                              "",
	}
	for in, want := range cases {
		if got := CleanURL(in); got != want {
			t.Errorf("CleanURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTopicLocale(t *testing.T) {
	tp := Topic{LanguageCode: "en", RegionCode: "US"}
	if got := tp.Locale(); got != "en-US" {
		t.Errorf("Locale = %q, want en-US", got)
	}
	tp.RegionCode = ""
	if got := tp.Locale(); got != "en" {
		t.Errorf("Locale without region = %q, want en", got)
	}
}
