package torznab

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/tonearm/tonearm/internal/music"
	"github.com/tonearm/tonearm/internal/music/extract"
	"github.com/tonearm/tonearm/internal/music/scoring"
)

// Torznab feed structures. Torznab is RSS 2.0 plus a namespaced attr
// element carrying swarm metadata.

type torznabFeed struct {
	XMLName xml.Name       `xml:"rss"`
	Channel torznabChannel `xml:"channel"`
}

type torznabChannel struct {
	Title string        `xml:"title"`
	Items []torznabItem `xml:"item"`
}

type torznabItem struct {
	Title      string        `xml:"title"`
	GUID       string        `xml:"guid"`
	Link       string        `xml:"link"`
	Categories []string      `xml:"category"`
	Size       string        `xml:"size"`
	PubDate    string        `xml:"pubDate"`
	Indexer    string        `xml:"jackettindexer"`
	Attrs      []torznabAttr `xml:"http://torznab.com/schemas/2015/feed attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ParseFeed parses a torznab XML document into music sources. Items
// without a true magnet URI are dropped: proxy download URLs cannot
// be resolved outside the indexer host. Malformed numeric fields
// degrade to zero rather than discarding the item.
func ParseFeed(data []byte, fallbackIndexer string) ([]music.Source, error) {
	var feed torznabFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, err
	}

	var sources []music.Source
	for _, item := range feed.Channel.Items {
		attrs := make(map[string]string, len(item.Attrs))
		for _, a := range item.Attrs {
			if a.Name != "" && a.Value != "" {
				attrs[a.Name] = a.Value
			}
		}

		magnet := attrs["magneturl"]
		if magnet == "" && strings.HasPrefix(item.Link, "magnet:") {
			magnet = item.Link
		}
		if !strings.HasPrefix(magnet, "magnet:") {
			continue
		}

		seeders := atoiDefault(attrs["seeders"], 0)
		leechers := atoiDefault(attrs["peers"], 0)

		size := atoi64Default(item.Size, 0)
		if size == 0 {
			size = atoi64Default(attrs["size"], 0)
		}

		indexer := strings.TrimSpace(item.Indexer)
		if indexer == "" {
			indexer = attrs["indexer"]
		}
		if indexer == "" {
			indexer = fallbackIndexer
		}

		format := extract.Format(item.Title)
		if format == "" {
			format = formatFromCategory(item.Title, item.Categories)
		}

		uploadedAt := parsePubDate(item.PubDate)

		src := music.Source{
			Title:      item.Title,
			Format:     format,
			Kind:       music.KindTorrent,
			URL:        magnet,
			MagnetLink: magnet,
			Indexer:    indexer,
			Seeders:    &seeders,
			Leechers:   &leechers,
			SizeBytes:  size,
			UploadedAt: &uploadedAt,
			Bitrate:    extract.Bitrate(item.Title),
		}
		src.ID = src.Identity()
		src.QualityScore = scoring.Score(&src)

		sources = append(sources, src)
	}

	return sources, nil
}

// formatFromCategory infers the audio format from the first torznab
// category when the title itself names no format.
func formatFromCategory(title string, categories []string) string {
	if len(categories) == 0 {
		return ""
	}
	cat := atoiDefault(categories[0], 0)

	switch cat {
	case 3040:
		return "FLAC"
	case 3010:
		return "MP3"
	case 3030:
		return "AAC"
	case 3000, 3050:
		lower := strings.ToLower(title)
		switch {
		case strings.Contains(lower, "flac"), strings.Contains(lower, "24bit"), strings.Contains(lower, "24-bit"):
			return "FLAC"
		case strings.Contains(lower, "mp3"), strings.Contains(lower, "320kbps"), strings.Contains(lower, "320k"), strings.Contains(lower, "cbr"):
			return "MP3"
		case strings.Contains(lower, "aac"):
			return "AAC"
		}
	}
	return ""
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

// parsePubDate parses the RFC 822 style pubDate used in RSS feeds,
// defaulting to the current time when the value is unparseable.
func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

func atoiDefault(s string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return v
}

func atoi64Default(s string, fallback int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
