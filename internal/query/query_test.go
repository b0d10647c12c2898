package query

import (
	"testing"
)

func TestIsSQL(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: `SELECT album WHERE artist="Radiohead"`, want: true},
		{input: `  select track WHERE title="Karma Police"`, want: true},
		{input: "radiohead ok computer", want: false},
		{input: "", want: false},
	}

	for _, tt := range tests {
		if got := IsSQL(tt.input); got != tt.want {
			t.Errorf("IsSQL(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseSQL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Query
	}{
		{
			name:  "album with artist year and format",
			input: `SELECT album WHERE artist="Radiohead" AND year=1997 AND format="FLAC"`,
			want: Query{
				Type: TypeAlbum, Artist: "Radiohead", Year: 1997, Format: "FLAC",
				MinSeeders: 1, OrderBy: "quality", OrderDesc: true, Limit: 50,
			},
		},
		{
			name:  "track with order and limit",
			input: `SELECT track WHERE title="Karma Police" ORDER BY seeders DESC LIMIT 10`,
			want: Query{
				Type: TypeTrack, Track: "Karma Police",
				MinSeeders: 1, OrderBy: "seeders", OrderDesc: true, Limit: 10,
			},
		},
		{
			name:  "ascending order",
			input: `SELECT album WHERE artist="Boards of Canada" ORDER BY size ASC`,
			want: Query{
				Type: TypeAlbum, Artist: "Boards of Canada",
				MinSeeders: 1, OrderBy: "size", OrderDesc: false, Limit: 50,
			},
		},
		{
			name:  "year range",
			input: `SELECT artist WHERE name="Miles Davis" AND year BETWEEN 1955 AND 1965`,
			want: Query{
				Type: TypeArtist, Artist: "Miles Davis", YearFrom: 1955, YearTo: 1965,
				MinSeeders: 1, OrderBy: "quality", OrderDesc: true, Limit: 50,
			},
		},
		{
			name:  "seeder and size comparisons",
			input: `SELECT album WHERE artist="Tool" AND seeders>=10 AND size>=100 AND size<=2000`,
			want: Query{
				Type: TypeAlbum, Artist: "Tool", MinSeeders: 10, MinSizeMB: 100, MaxSizeMB: 2000,
				OrderBy: "quality", OrderDesc: true, Limit: 50,
			},
		},
		{
			name:  "field aliases",
			input: `SELECT album WHERE name="Aphex Twin" AND release="Drukqs" AND song="Avril 14th"`,
			want: Query{
				Type: TypeAlbum, Artist: "Aphex Twin", Album: "Drukqs", Track: "Avril 14th",
				MinSeeders: 1, OrderBy: "quality", OrderDesc: true, Limit: 50,
			},
		},
		{
			name:  "unknown keys ignored",
			input: `SELECT artist WHERE artist="Miles Davis" AND genre="Jazz" AND mood="cool"`,
			want: Query{
				Type: TypeArtist, Artist: "Miles Davis",
				MinSeeders: 1, OrderBy: "quality", OrderDesc: true, Limit: 50,
			},
		},
		{
			name:  "limit with offset",
			input: `SELECT album WHERE artist="Can" LIMIT 20 OFFSET 40`,
			want: Query{
				Type: TypeAlbum, Artist: "Can",
				MinSeeders: 1, OrderBy: "quality", OrderDesc: true, Limit: 20, Offset: 40,
			},
		},
		{
			name:  "order column aliases",
			input: `SELECT album WHERE artist="Low" ORDER BY uploaded`,
			want: Query{
				Type: TypeAlbum, Artist: "Low",
				MinSeeders: 1, OrderBy: "date", OrderDesc: true, Limit: 50,
			},
		},
		{
			name:  "unknown order column falls back to quality",
			input: `SELECT album WHERE artist="Low" ORDER BY popularity`,
			want: Query{
				Type: TypeAlbum, Artist: "Low",
				MinSeeders: 1, OrderBy: "quality", OrderDesc: true, Limit: 50,
			},
		},
		{
			name:  "single quoted strings and source uppercasing",
			input: `SELECT album WHERE artist='Neu!' AND source='vinyl' AND label='Brain'`,
			want: Query{
				Type: TypeAlbum, Artist: "Neu!", Source: "VINYL", Label: "Brain",
				MinSeeders: 1, OrderBy: "quality", OrderDesc: true, Limit: 50,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSQL(tt.input)
			if !ok {
				t.Fatalf("ParseSQL(%q) ok = false, want true", tt.input)
			}
			if *got != tt.want {
				t.Errorf("ParseSQL(%q) = %+v, want %+v", tt.input, *got, tt.want)
			}
		})
	}
}

func TestParseSQLRejectsNonSQL(t *testing.T) {
	inputs := []string{
		"radiohead ok computer",
		"SELECT playlist WHERE name=\"mix\"",
		"",
	}
	for _, input := range inputs {
		if _, ok := ParseSQL(input); ok {
			t.Errorf("ParseSQL(%q) ok = true, want false", input)
		}
	}
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{name: "artist album track", query: Query{Artist: "Radiohead", Album: "OK Computer", Track: "Lucky"}, want: "Radiohead OK Computer Lucky"},
		{name: "artist only", query: Query{Artist: "Radiohead"}, want: "Radiohead"},
		{name: "empty", query: Query{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Terms(); got != tt.want {
				t.Errorf("Terms() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToSQLRoundTrip(t *testing.T) {
	q := NewQuery(TypeAlbum)
	q.Artist = "Radiohead"
	q.Album = "OK Computer"
	q.Format = "FLAC"
	q.Year = 1997

	rendered := q.ToSQL()
	want := `SELECT album WHERE artist="Radiohead" AND album="OK Computer" AND year=1997 AND format="FLAC" ORDER BY quality DESC LIMIT 50`
	if rendered != want {
		t.Errorf("ToSQL() = %q, want %q", rendered, want)
	}

	parsed, ok := ParseSQL(rendered)
	if !ok {
		t.Fatal("ParseSQL(ToSQL()) ok = false, want true")
	}
	if *parsed != *q {
		t.Errorf("round trip = %+v, want %+v", *parsed, *q)
	}
}

func TestFromNatural(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantType   string
		wantArtist string
		wantYear   int
		wantFormat string
	}{
		{
			name:       "format word extracted",
			input:      "radiohead ok computer flac",
			wantType:   TypeAlbum,
			wantArtist: "Radiohead Ok Computer",
			wantFormat: "FLAC",
		},
		{
			name:       "year with from prefix",
			input:      "miles davis from 1959",
			wantType:   TypeArtist,
			wantArtist: "Miles Davis",
			wantYear:   1959,
		},
		{
			name:       "single word",
			input:      "yesterday",
			wantType:   TypeArtist,
			wantArtist: "Yesterday",
		},
		{
			name:       "format word inside another word ignored",
			input:      "reflaction band",
			wantType:   TypeArtist,
			wantArtist: "Reflaction Band",
		},
		{
			name:       "longer query keeps all words",
			input:      "king crimson in the court of the crimson king",
			wantType:   TypeAlbum,
			wantArtist: "King Crimson In The Court Of The Crimson King",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromNatural(tt.input)
			if got.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", got.Type, tt.wantType)
			}
			if got.Artist != tt.wantArtist {
				t.Errorf("Artist = %q, want %q", got.Artist, tt.wantArtist)
			}
			if got.Year != tt.wantYear {
				t.Errorf("Year = %d, want %d", got.Year, tt.wantYear)
			}
			if got.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", got.Format, tt.wantFormat)
			}
			if got.Limit != DefaultLimit {
				t.Errorf("Limit = %d, want %d", got.Limit, DefaultLimit)
			}
		})
	}
}
