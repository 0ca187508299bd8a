package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orvale/backend/internal/metrics"
	"github.com/orvale/backend/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// teamPrefixes maps known teams to their ticket prefix
var teamPrefixes = map[string]string{
	"ITTS_Region1":   "R1",
	"ITTS_Region2":   "R2",
	"ITTS_Region3":   "R3",
	"ITTS_Region4":   "R4",
	"ITTS_Region5":   "R5",
	"ITTS_Region6":   "R6",
	"ITTS_Region7":   "R7",
	"ITTS_Region8":   "R8",
	"ITTS_Main":      "IT",
	"HR_Support":     "HR",
	"Facilities":     "FA",
	"NET_Operations": "NO",
}

const nextSequenceSQL = `
	INSERT INTO ticket_sequences (team_id, date, last_sequence, prefix)
	VALUES (?, ?, 1, ?)
	ON CONFLICT (team_id, date) DO UPDATE
	SET last_sequence = ticket_sequences.last_sequence + 1
	RETURNING last_sequence`

func prefixChars(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// GetTeamPrefix returns the two-character ticket prefix for a team. Unknown
// teams use the first letter of each underscore-separated segment, or their
// first two characters.
func GetTeamPrefix(teamID string) string {
	if p, ok := teamPrefixes[teamID]; ok {
		return p
	}

	var prefix string
	if segments := strings.FieldsFunc(teamID, func(r rune) bool { return r == '_' }); len(segments) > 1 {
		var initials strings.Builder
		for _, seg := range segments {
			if c := prefixChars(seg); c != "" {
				initials.WriteByte(c[0])
			}
		}
		prefix = initials.String()
	}
	if len(prefix) < 2 {
		prefix = prefixChars(teamID)
	}

	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	for len(prefix) < 2 {
		prefix += "X"
	}
	return prefix
}

// FormatTicketNumber renders PREFIX-YYMMDD-SEQ with the sequence padded to
// three digits
func FormatTicketNumber(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, day.Format("060102"), seq)
}

// TicketSequenceService hands out per-team, per-day ticket numbers
type TicketSequenceService struct {
	db      *gorm.DB
	loc     *time.Location
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewTicketSequenceService creates an allocator that numbers days in loc
func NewTicketSequenceService(db *gorm.DB, loc *time.Location, m *metrics.Metrics, log zerolog.Logger) *TicketSequenceService {
	if loc == nil {
		loc = time.UTC
	}
	return &TicketSequenceService{
		db:      db,
		loc:     loc,
		metrics: m,
		log:     log.With().Str("component", "ticket_sequence").Logger(),
	}
}

func (s *TicketSequenceService) day(date time.Time) string {
	return date.In(s.loc).Format("2006-01-02")
}

// NextSequence atomically allocates the next sequence for the team on the
// calendar day of date. The first allocation of a day returns 1.
func (s *TicketSequenceService) NextSequence(ctx context.Context, teamID string, date time.Time) (int, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return 0, ErrEmptyTeam
	}

	var seq int
	err := s.db.WithContext(ctx).Raw(nextSequenceSQL, teamID, s.day(date), GetTeamPrefix(teamID)).Scan(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("allocate sequence for %s: %w", teamID, err)
	}
	if seq < 1 {
		return 0, fmt.Errorf("allocate sequence for %s: no sequence returned", teamID)
	}
	return seq, nil
}

// NextTicketNumber allocates a sequence and formats it as a ticket number
func (s *TicketSequenceService) NextTicketNumber(ctx context.Context, teamID string, date time.Time) (string, error) {
	seq, err := s.NextSequence(ctx, teamID, date)
	if err != nil {
		return "", err
	}
	prefix := GetTeamPrefix(strings.TrimSpace(teamID))
	number := FormatTicketNumber(prefix, date.In(s.loc), seq)

	s.metrics.RecordTicketAllocated(prefix)
	s.log.Debug().Str("team_id", teamID).Str("ticket", number).Msg("ticket number allocated")
	return number, nil
}

// CurrentSequence returns the last allocated sequence without allocating,
// or 0 when none was issued that day
func (s *TicketSequenceService) CurrentSequence(ctx context.Context, teamID string, date time.Time) (int, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return 0, ErrEmptyTeam
	}

	var rows []models.TicketSequence
	err := s.db.WithContext(ctx).
		Where(&models.TicketSequence{TeamID: teamID, Date: s.day(date)}).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].LastSequence, nil
}
