package query

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tonearm/tonearm/internal/music"
)

func TestFallback(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		wantArtist     string
		wantAlbum      string
		wantType       music.SearchType
		wantConfidence float64
	}{
		{
			name:           "dash separator",
			input:          "Radiohead - OK Computer",
			wantArtist:     "Radiohead",
			wantAlbum:      "OK Computer",
			wantType:       music.SearchTypeAlbum,
			wantConfidence: 0.8,
		},
		{
			name:           "slash separator",
			input:          "Boards of Canada / Music Has the Right to Children",
			wantArtist:     "Boards of Canada",
			wantAlbum:      "Music Has the Right to Children",
			wantType:       music.SearchTypeAlbum,
			wantConfidence: 0.8,
		},
		{
			name:           "pipe separator",
			input:          "Can | Tago Mago",
			wantArtist:     "Can",
			wantAlbum:      "Tago Mago",
			wantType:       music.SearchTypeAlbum,
			wantConfidence: 0.8,
		},
		{
			name:           "separator wins over word count",
			input:          "The Cinematic Orchestra - Every Day",
			wantArtist:     "The Cinematic Orchestra",
			wantAlbum:      "Every Day",
			wantType:       music.SearchTypeAlbum,
			wantConfidence: 0.8,
		},
		{
			name:           "two words is artist only",
			input:          "Miles Davis",
			wantArtist:     "Miles Davis",
			wantType:       music.SearchTypeArtist,
			wantConfidence: 0.5,
		},
		{
			name:           "three words splits artist and album",
			input:          "Radiohead OK Computer",
			wantArtist:     "Radiohead",
			wantAlbum:      "OK Computer",
			wantType:       music.SearchTypeAlbum,
			wantConfidence: 0.6,
		},
		{
			name:           "four words splits artist and album",
			input:          "Portishead Roseland New York",
			wantArtist:     "Portishead",
			wantAlbum:      "Roseland New York",
			wantType:       music.SearchTypeAlbum,
			wantConfidence: 0.6,
		},
		{
			name:           "five words with capitalized second word",
			input:          "Pink Floyd Wish You Were Here",
			wantArtist:     "Pink Floyd",
			wantAlbum:      "Wish You Were Here",
			wantType:       music.SearchTypeAlbum,
			wantConfidence: 0.6,
		},
		{
			name:           "five words with lowercase second word",
			input:          "tortoise millions now living will",
			wantArtist:     "tortoise",
			wantAlbum:      "millions now living will",
			wantType:       music.SearchTypeAlbum,
			wantConfidence: 0.6,
		},
		{
			name:           "hyphen without spaces is not a separator",
			input:          "Jay-Z",
			wantArtist:     "Jay-Z",
			wantType:       music.SearchTypeArtist,
			wantConfidence: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fallback(tt.input)
			if got.Artist != tt.wantArtist {
				t.Errorf("Artist = %q, want %q", got.Artist, tt.wantArtist)
			}
			if got.Album != tt.wantAlbum {
				t.Errorf("Album = %q, want %q", got.Album, tt.wantAlbum)
			}
			if got.SearchType != tt.wantType {
				t.Errorf("SearchType = %q, want %q", got.SearchType, tt.wantType)
			}
			if got.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
		})
	}
}

type fakeAdvisor struct {
	parsed music.ParsedQuery
	err    error
	called bool
}

func (f *fakeAdvisor) ParseQuery(ctx context.Context, q string) (music.ParsedQuery, error) {
	f.called = true
	return f.parsed, f.err
}

func TestParserUsesAdvisor(t *testing.T) {
	advisor := &fakeAdvisor{parsed: music.ParsedQuery{
		Artist:     "Esperanza Spalding",
		Song:       "I Know You Know",
		SearchType: music.SearchTypeSong,
		Confidence: 0.8,
	}}

	parser := NewParser(advisor, zerolog.Nop())
	got := parser.Parse(context.Background(), "Esperanza Spalding I know")

	if !advisor.called {
		t.Fatal("advisor was not called")
	}
	if got.Song != "I Know You Know" || got.SearchType != music.SearchTypeSong {
		t.Errorf("Parse() = %+v, want advisor result", got)
	}
}

func TestParserFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		advisor *fakeAdvisor
	}{
		{
			name:    "advisor error",
			advisor: &fakeAdvisor{err: errors.New("upstream 500")},
		},
		{
			name: "invalid search type",
			advisor: &fakeAdvisor{parsed: music.ParsedQuery{
				Artist: "Radiohead", SearchType: "playlist", Confidence: 0.9,
			}},
		},
		{
			name: "confidence out of range",
			advisor: &fakeAdvisor{parsed: music.ParsedQuery{
				Artist: "Radiohead", SearchType: music.SearchTypeAlbum, Confidence: 1.5,
			}},
		},
		{
			name: "all fields empty",
			advisor: &fakeAdvisor{parsed: music.ParsedQuery{
				SearchType: music.SearchTypeUnknown, Confidence: 0.4,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser(tt.advisor, zerolog.Nop())
			got := parser.Parse(context.Background(), "Radiohead - OK Computer")

			if !tt.advisor.called {
				t.Fatal("advisor was not called")
			}
			// Heuristic result for the separator form.
			if got.Artist != "Radiohead" || got.Album != "OK Computer" || got.Confidence != 0.8 {
				t.Errorf("Parse() = %+v, want heuristic fallback result", got)
			}
		})
	}
}

func TestParserWithoutAdvisor(t *testing.T) {
	parser := NewParser(nil, zerolog.Nop())
	got := parser.Parse(context.Background(), "Miles Davis")

	if got.SearchType != music.SearchTypeArtist || got.Artist != "Miles Davis" {
		t.Errorf("Parse() = %+v, want heuristic artist result", got)
	}
}
