package datasource

import (
	"testing"

	"docetl/pkg/records"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{Contains: "playlist", Kind: records.KindPlaylist},
		{Contains: "track", Kind: records.KindTrack, Collection: "songs"},
	}

	cases := []struct {
		name     string
		wantKind records.Kind
		wantColl string
	}{
		{"data/Spotify_Playlists.csv", records.KindPlaylist, "playlists"},
		{"tracks_2020.csv", records.KindTrack, "songs"},
		{"data/artists.v2.csv", records.KindGeneric, "artists"},
	}
	for _, c := range cases {
		k, coll := Resolve(c.name, rules)
		if k != c.wantKind || coll != c.wantColl {
			t.Fatalf("Resolve(%q) = (%v, %q), want (%v, %q)", c.name, k, coll, c.wantKind, c.wantColl)
		}
	}
}

func TestBaseCollection(t *testing.T) {
	t.Parallel()

	if got := BaseCollection(`C:\data\spotify_dataset.csv`); got != "spotify_dataset" {
		t.Fatalf("got %q", got)
	}
	if got := BaseCollection(".hidden"); got != ".hidden" {
		t.Fatalf("got %q", got)
	}
}
