package grouping

import (
	"time"

	"github.com/TechnicallyShaun/nota-memos/internal/transcribe/metadata"
	"github.com/m-mizutani/goerr/v2"
	"github.com/ncruces/go-strftime"
)

// UnitMode selects how memos are split into sub-containers (tabs, sections)
// inside one container.
type UnitMode string

const (
	UnitsDaily     UnitMode = "daily"
	UnitsWeekly    UnitMode = "weekly"
	UnitsTimeOfDay UnitMode = "time_of_day"
	UnitsDuration  UnitMode = "duration"
	UnitsNone      UnitMode = "none"
	UnitsByTag     UnitMode = "tag"
)

// DefaultUnitDateFormat is the strftime layout for daily sub-container titles.
const DefaultUnitDateFormat = "%B %d, %Y"

// UnitStrategy maps a memo to a sub-container key and titles it.
type UnitStrategy interface {
	Mode() UnitMode
	Key(ts time.Time, meta metadata.AudioMetadata) string
	Title(key string, ts time.Time) string
}

// UnitOptions configures NewUnitStrategy.
type UnitOptions struct {
	Mode           UnitMode
	DateFormat     string
	TagPattern     string
	HourRanges     []HourRange
	DurationRanges []DurationRange
}

// NewUnitStrategy builds the sub-container strategy selected by opts. An empty
// mode means daily.
func NewUnitStrategy(opts UnitOptions) (UnitStrategy, error) {
	switch opts.Mode {
	case UnitsDaily, "":
		format := opts.DateFormat
		if format == "" {
			format = DefaultUnitDateFormat
		}
		return dailyUnits{format: format}, nil
	case UnitsWeekly:
		return weeklyUnits{}, nil
	case UnitsTimeOfDay:
		ranges := opts.HourRanges
		if len(ranges) == 0 {
			ranges = DefaultHourRanges()
		}
		if err := validateHourRanges(ranges); err != nil {
			return nil, err
		}
		return newBucketUnits(UnitsTimeOfDay, ranges, func(ts time.Time, _ metadata.AudioMetadata) (int, bool) {
			return firstHourMatch(ranges, ts.Hour())
		}, func(r HourRange) string { return r.Name }), nil
	case UnitsDuration:
		ranges := opts.DurationRanges
		if len(ranges) == 0 {
			ranges = DefaultDurationRanges()
		}
		if err := validateDurationRanges(ranges); err != nil {
			return nil, err
		}
		return newBucketUnits(UnitsDuration, ranges, func(_ time.Time, meta metadata.AudioMetadata) (int, bool) {
			return firstDurationMatch(ranges, meta.Duration.Seconds())
		}, func(r DurationRange) string { return r.Name }), nil
	case UnitsNone:
		return noUnits{}, nil
	case UnitsByTag:
		m, err := newTagMatcher(opts.TagPattern)
		if err != nil {
			return nil, err
		}
		return taggedUnits{matcher: m}, nil
	default:
		return nil, goerr.Wrap(ErrUnknownStrategy, "unknown tab grouping",
			goerr.V("grouping", string(opts.Mode)))
	}
}

type dailyUnits struct {
	format string
}

func (dailyUnits) Mode() UnitMode { return UnitsDaily }

func (dailyUnits) Key(ts time.Time, _ metadata.AudioMetadata) string {
	return ts.Format(time.DateOnly)
}

func (u dailyUnits) Title(_ string, ts time.Time) string {
	return strftime.Format(u.format, ts)
}

type weeklyUnits struct{}

func (weeklyUnits) Mode() UnitMode { return UnitsWeekly }

func (weeklyUnits) Key(ts time.Time, _ metadata.AudioMetadata) string {
	return Monday(ts).Format(time.DateOnly)
}

func (weeklyUnits) Title(_ string, ts time.Time) string {
	return "Week of " + Monday(ts).Format("January 02, 2006")
}

// bucketUnits names a sub-container after the first configured range a memo
// falls into.
type bucketUnits struct {
	mode   UnitMode
	match  func(time.Time, metadata.AudioMetadata) (int, bool)
	names  []string
	titles map[string]string
}

func newBucketUnits[R any](mode UnitMode, ranges []R, match func(time.Time, metadata.AudioMetadata) (int, bool), name func(R) string) bucketUnits {
	b := bucketUnits{mode: mode, match: match, titles: make(map[string]string, len(ranges))}
	for _, r := range ranges {
		n := name(r)
		b.names = append(b.names, n)
		if _, seen := b.titles[Slug(n)]; !seen {
			b.titles[Slug(n)] = n
		}
	}
	return b
}

func (b bucketUnits) Mode() UnitMode { return b.mode }

func (b bucketUnits) Key(ts time.Time, meta metadata.AudioMetadata) string {
	i, ok := b.match(ts, meta)
	if !ok {
		return UnknownKey
	}
	return Slug(b.names[i])
}

func (b bucketUnits) Title(key string, _ time.Time) string {
	if title, ok := b.titles[key]; ok {
		return title
	}
	return "Unknown"
}

type noUnits struct{}

func (noUnits) Mode() UnitMode { return UnitsNone }

func (noUnits) Key(time.Time, metadata.AudioMetadata) string { return NoneKey }

func (noUnits) Title(string, time.Time) string { return "" }

type taggedUnits struct {
	matcher tagMatcher
}

func (taggedUnits) Mode() UnitMode { return UnitsByTag }

func (u taggedUnits) Key(_ time.Time, meta metadata.AudioMetadata) string {
	return u.matcher.key(meta)
}

func (taggedUnits) Title(key string, _ time.Time) string {
	return tagLabel(key)
}
