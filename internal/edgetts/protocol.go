package edgetts

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// SecMSGECVersion is sent alongside the Sec-MS-GEC token
	SecMSGECVersion = "1-130.0.2849.68"

	chromiumMajor = "130"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" +
		chromiumMajor + ".0.0.0 Safari/537.36 Edg/" + chromiumMajor + ".0.0.0"
	extensionOrigin = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"

	// maxPieceBytes bounds the escaped text sent in one ssml message
	maxPieceBytes = 4096

	// windowsEpochOffset is the number of seconds between 1601-01-01 and 1970-01-01
	windowsEpochOffset = 11644473600

	timestampLayout = "Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)"
)

var (
	shortVoicePattern = regexp.MustCompile(`^([a-z]{2,})-([A-Z]{2,})-(.+Neural)$`)
	fullVoicePattern  = regexp.MustCompile(`^Microsoft Server Speech Text to Speech Voice \(.+,.+\)$`)
	ratePattern       = regexp.MustCompile(`^[+-]\d+%$`)
	pitchPattern      = regexp.MustCompile(`^[+-]\d+Hz$`)
)

// SecMSGEC derives the anti-abuse token the service expects: the current time in
// Windows file time, rounded down to five minutes, hashed with the client token.
func SecMSGEC(now time.Time, trustedClientToken string) string {
	ticks := now.Unix() + windowsEpochOffset
	ticks -= ticks % 300
	ticks *= 10_000_000 // seconds -> 100ns intervals

	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%s", ticks, trustedClientToken)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// connectionID returns a dash-less uuid, the format the service uses for ids
func connectionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func timestamp(now time.Time) string {
	return now.UTC().Format(timestampLayout)
}

// ExpandVoiceName turns "en-US-AriaNeural" into the full service voice name.
// Names that do not look like short names are returned unchanged.
func ExpandVoiceName(voice string) string {
	m := shortVoicePattern.FindStringSubmatch(voice)
	if m == nil {
		return voice
	}
	lang, region, name := m[1], m[2], m[3]
	// Regional variants such as zh-CN-liaoning-XiaobeiNeural
	if i := strings.Index(name, "-"); i >= 0 {
		region = region + "-" + name[:i]
		name = name[i+1:]
	}
	return fmt.Sprintf("Microsoft Server Speech Text to Speech Voice (%s-%s, %s)", lang, region, name)
}

// normalize fills defaults and validates every option
func (o Options) normalize() (Options, error) {
	if o.Rate == "" {
		o.Rate = "+0%"
	}
	if o.Pitch == "" {
		o.Pitch = "+0Hz"
	}
	if o.Volume == "" {
		o.Volume = "+0%"
	}

	o.Voice = ExpandVoiceName(strings.TrimSpace(o.Voice))
	if !fullVoicePattern.MatchString(o.Voice) {
		return o, fmt.Errorf("%w: voice %q", ErrInvalidOption, o.Voice)
	}
	if !ratePattern.MatchString(o.Rate) {
		return o, fmt.Errorf("%w: rate %q must look like +0%%", ErrInvalidOption, o.Rate)
	}
	if !ratePattern.MatchString(o.Volume) {
		return o, fmt.Errorf("%w: volume %q must look like +0%%", ErrInvalidOption, o.Volume)
	}
	if !pitchPattern.MatchString(o.Pitch) {
		return o, fmt.Errorf("%w: pitch %q must look like +0Hz", ErrInvalidOption, o.Pitch)
	}
	return o, nil
}

// Validate reports whether the options would be accepted by Stream
func (o Options) Validate() error {
	_, err := o.normalize()
	return err
}

// RemoveIncompatibleCharacters replaces control characters the service rejects with spaces.
// Tab, line feed and carriage return are kept.
func RemoveIncompatibleCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 0 && r <= 8) || r == 11 || r == 12 || (r >= 14 && r <= 31) {
			return ' '
		}
		return r
	}, text)
}

// SplitText cuts already escaped text into pieces of at most limit bytes.
// Cuts prefer a newline, then a space, never fall inside a UTF-8 sequence
// and never inside an XML entity such as &amp;.
func SplitText(text string, limit int) []string {
	if limit <= 0 {
		limit = maxPieceBytes
	}

	var pieces []string
	b := []byte(text)

	for len(b) > limit {
		cut := bytes.LastIndexByte(b[:limit], '\n')
		if cut <= 0 {
			cut = bytes.LastIndexByte(b[:limit], ' ')
		}
		if cut <= 0 {
			cut = runeBoundary(b, limit)
		}
		cut = entityBoundary(b, cut)
		if cut <= 0 {
			// An entity longer than the limit cannot happen with sane limits
			cut = runeBoundary(b, limit)
		}

		if piece := strings.TrimSpace(string(b[:cut])); piece != "" {
			pieces = append(pieces, piece)
		}
		b = b[cut:]
	}

	if rest := strings.TrimSpace(string(b)); rest != "" {
		pieces = append(pieces, rest)
	}
	return pieces
}

// runeBoundary moves cut back until it sits on the start of a rune
func runeBoundary(b []byte, cut int) int {
	for cut > 0 && cut < len(b) && !utf8.RuneStart(b[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRune(b)
		return size
	}
	return cut
}

// entityBoundary moves cut before an unterminated '&' entity
func entityBoundary(b []byte, cut int) int {
	amp := bytes.LastIndexByte(b[:cut], '&')
	if amp < 0 {
		return cut
	}
	if bytes.IndexByte(b[amp:cut], ';') >= 0 {
		return cut
	}
	return amp
}

func buildSSML(text string, o Options) string {
	return "<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'>" +
		"<voice name='" + o.Voice + "'>" +
		"<prosody pitch='" + o.Pitch + "' rate='" + o.Rate + "' volume='" + o.Volume + "'>" +
		text +
		"</prosody></voice></speak>"
}

func speechConfigMessage(now time.Time, outputFormat string) string {
	return "X-Timestamp:" + timestamp(now) + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":{` +
		`"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"true"},` +
		`"outputFormat":"` + outputFormat + `"}}}}` + "\r\n"
}

func ssmlMessage(now time.Time, requestID, ssml string) string {
	return "X-RequestId:" + requestID + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + timestamp(now) + "Z\r\n" +
		"Path:ssml\r\n\r\n" +
		ssml
}

// parseTextFrame splits a text frame into its headers and body
func parseTextFrame(data []byte) (map[string]string, []byte) {
	idx := bytes.Index(data, []byte("\r\n\r\n"))
	if idx < 0 {
		return parseHeaders(data), nil
	}
	return parseHeaders(data[:idx]), data[idx+4:]
}

// parseBinaryFrame splits a binary frame: a big-endian uint16 header length,
// the headers, then the audio payload.
func parseBinaryFrame(data []byte) (map[string]string, []byte, error) {
	if len(data) < 2 {
		return nil, nil, fmt.Errorf("%w: binary frame too short", ErrUnexpectedResponse)
	}
	headerLen := int(binary.BigEndian.Uint16(data[:2]))
	if 2+headerLen > len(data) {
		return nil, nil, fmt.Errorf("%w: header length %d exceeds frame size %d", ErrUnexpectedResponse, headerLen, len(data))
	}
	return parseHeaders(data[2 : 2+headerLen]), data[2+headerLen:], nil
}

func parseHeaders(data []byte) map[string]string {
	headers := make(map[string]string)
	for _, line := range bytes.Split(data, []byte("\r\n")) {
		k, v, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			continue
		}
		headers[string(k)] = string(v)
	}
	return headers
}

// metadataMessage is the body of an audio.metadata frame
type metadataMessage struct {
	Metadata []struct {
		Type string `json:"Type"`
		Data struct {
			Offset   int64 `json:"Offset"`
			Duration int64 `json:"Duration"`
			Text     struct {
				Text string `json:"Text"`
			} `json:"text"`
		} `json:"Data"`
	} `json:"Metadata"`
}
