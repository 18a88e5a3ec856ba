package youtube

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
  <title>Swiss Basketball</title>
  <entry>
    <yt:videoId>live1</yt:videoId>
    <title>Fribourg vs Geneva</title>
    <published>2024-03-15T17:00:00+00:00</published>
    <updated>2024-03-15T17:35:00+00:00</updated>
    <yt:liveBroadcastContent>live</yt:liveBroadcastContent>
    <media:group><media:title>ignored</media:title></media:group>
  </entry>
  <entry>
    <yt:videoId>next1</yt:videoId>
    <title>Lugano vs Monthey</title>
    <yt:liveBroadcastContent>upcoming</yt:liveBroadcastContent>
  </entry>
  <entry>
    <yt:videoId>vod1</yt:videoId>
    <title>Highlights</title>
    <yt:liveBroadcastContent>none</yt:liveBroadcastContent>
  </entry>
</feed>`

func TestParseFeedAndSplit(t *testing.T) {
	entries, err := ParseFeed([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Title != "Fribourg vs Geneva" || entries[0].VideoID != "live1" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	live, upcoming := SplitFeed(entries)
	if len(live) != 1 || live[0].URL != "https://www.youtube.com/watch?v=live1" || live[0].StartedAt != nil {
		t.Fatalf("unexpected live: %+v", live)
	}
	if len(upcoming) != 1 || upcoming[0].ID != "next1" {
		t.Fatalf("unexpected upcoming: %+v", upcoming)
	}
}

func TestFeedClientFetchesChannelFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feeds/videos.xml" || r.URL.Query().Get("channel_id") != "UC1" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = io.WriteString(w, sampleFeed)
	}))
	defer srv.Close()

	entries, err := FeedClient{BaseURL: srv.URL}.Entries(context.Background(), "UC1")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestFeedClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := (FeedClient{BaseURL: srv.URL}).Entries(context.Background(), "UC1"); err == nil {
		t.Fatalf("expected error on 404")
	}
	if _, err := (FeedClient{BaseURL: srv.URL}).Entries(context.Background(), " "); err == nil {
		t.Fatalf("expected error without channel")
	}
}
