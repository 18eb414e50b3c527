package service

import (
	"context"
	"fmt"
	"strings"

	"attendance-agent/internal/backend"

	"github.com/sirupsen/logrus"
)

// ProfileBackend источник анкеты работника
type ProfileBackend interface {
	FetchProfile(ctx context.Context, email string) (*backend.Profile, error)
}

// ProfileService анкета текущего пользователя
type ProfileService struct {
	attendance *AttendanceService
	backend    ProfileBackend
	logger     *logrus.Logger
}

func NewProfileService(attendance *AttendanceService, api ProfileBackend) *ProfileService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	return &ProfileService{
		attendance: attendance,
		backend:    api,
		logger:     logger,
	}
}

// Profile анкета вошедшего пользователя и его email
func (s *ProfileService) Profile(ctx context.Context) (string, *backend.Profile, error) {
	email, err := s.attendance.UserEmail()
	if err != nil {
		return "", nil, fmt.Errorf("read user: %w", err)
	}
	if email == "" {
		return "", nil, ErrNoUser
	}

	profile, err := s.backend.FetchProfile(ctx, email)
	if err != nil {
		s.logger.WithError(err).WithField("email", email).Warn("Failed to fetch profile")
		return "", nil, err
	}

	return email, profile, nil
}

// FormatProfile форматирует анкету для отображения
func (s *ProfileService) FormatProfile(email string, profile *backend.Profile) string {
	if profile == nil {
		return "❌ Profile not found"
	}

	var result strings.Builder
	result.WriteString("👤 Profile\n\n")
	result.WriteString("📧 " + email + "\n")

	address := joinNonEmpty(", ", profile.Address, profile.City, joinNonEmpty(" ", profile.Province, profile.PostalCode))
	writeField(&result, "🏠 Address", address)
	writeField(&result, "🎂 Date of birth", profile.DateOfBirth)
	writeField(&result, "📞 Emergency contact", profile.ContactNumber)
	writeField(&result, "🚗 Driver license expires", profile.DriverLicenseExpiryDate)

	if len(profile.Documents) > 0 {
		result.WriteString("\n📄 Documents:\n")
		writeDocuments(&result, profile.Documents)
	}
	if len(profile.Certifications) > 0 {
		result.WriteString("\n🎓 Certifications:\n")
		writeDocuments(&result, profile.Certifications)
	}

	return strings.TrimRight(result.String(), "\n")
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		value = "-"
	}
	b.WriteString(fmt.Sprintf("%s: %s\n", label, value))
}

func writeDocuments(b *strings.Builder, docs []backend.ProfileDocument) {
	for _, doc := range docs {
		var status string
		switch {
		case doc.Missing():
			status = "❌ missing"
		case doc.FileName == "":
			status = "➖ not uploaded (optional)"
		case doc.Approved:
			status = "✅ approved"
		default:
			status = "⏳ pending review"
		}
		b.WriteString(fmt.Sprintf("   %s: %s\n", documentTitle(doc.Tag), status))
	}
}

// documentTitle work_permit -> Work permit
func documentTitle(tag string) string {
	title := strings.TrimSpace(strings.ReplaceAll(tag, "_", " "))
	if title == "" {
		return "Document"
	}
	return strings.ToUpper(title[:1]) + title[1:]
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, sep)
}
