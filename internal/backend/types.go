package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexString принимает строку или число
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(data) == "true" || string(data) == "false" {
		*f = flexString(data)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat принимает число или строку с числом
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if strings.TrimSpace(string(s)) == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexBool принимает true/false, 1/0 и их строковые формы
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "true", "1", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// envelope общие поля ответов: status и его устаревший синоним success
type envelope struct {
	Status  *flexBool `json:"status"`
	Success *flexBool `json:"success"`
	Message string    `json:"message"`
}

func (e envelope) ok() bool {
	if e.Status != nil {
		return bool(*e.Status)
	}
	if e.Success != nil {
		return bool(*e.Success)
	}
	return false
}

type ClockInRequest struct {
	Email     string
	Latitude  float64
	Longitude float64
	Timezone  string
}

// ClockInResponse данные смены, выданные сервером
type ClockInResponse struct {
	Message       string
	Latitude      float64
	Longitude     float64
	WorkSeconds   int64
	ScheduleID    string
	AppointmentID string
}

type clockInPayload struct {
	envelope
	Latitude      flexFloat  `json:"latitude"`
	Longitude     flexFloat  `json:"longitude"`
	WorkSeconds   flexFloat  `json:"work_seconds"`
	ScheduleID    flexString `json:"schedule_id"`
	AppointmentID flexString `json:"appointmentId"`
}

type ClockOutRequest struct {
	Email    string
	Timezone string
	Trigger  string
}

type ClockOutResponse struct {
	Message string
}

// ScheduleStatus ответ checkscheduleclockout
type ScheduleStatus struct {
	ClockedOut   bool
	ClockedOutAt string
}

type scheduleStatusPayload struct {
	ClockedOut   flexBool   `json:"clocked_out"`
	ClockedOutAt flexString `json:"clocked_out_at"`
}

// Schedule смена из графика работника
type Schedule struct {
	ID         string
	Date       string
	StartTime  string
	EndTime    string
	PayPerHour float64
	ClockIn    string
	ClockOut   string
}

// MonthlySchedules ответ fetchmonthlyschedules
type MonthlySchedules struct {
	Schedules []Schedule
	// число смен по дате YYYY-MM-DD
	MarkedDates map[string]int
}

type schedulePayload struct {
	ID         flexString `json:"id"`
	Date       flexString `json:"date"`
	StartTime  flexString `json:"start_time"`
	EndTime    flexString `json:"end_time"`
	PayPerHour flexFloat  `json:"pay_per_hour"`
	ClockIn    flexString `json:"clockin"`
	ClockOut   flexString `json:"clockout"`
}

type monthlySchedulesPayload struct {
	envelope
	Data struct {
		Schedules   []schedulePayload `json:"schedules"`
		MarkedDates map[string]struct {
			Count flexFloat `json:"count"`
		} `json:"marked_dates"`
	} `json:"data"`
}

// Profile анкета работника. Паспортные и банковские поля не читаются.
type Profile struct {
	Address                 string
	City                    string
	Province                string
	PostalCode              string
	DateOfBirth             string
	ContactNumber           string
	DriverLicenseExpiryDate string
	Documents               []ProfileDocument
	Certifications          []ProfileDocument
}

// ProfileDocument загруженный документ или сертификат
type ProfileDocument struct {
	Tag      string
	FileName string
	Approved bool
	Optional bool
}

// Missing документ обязателен, но не загружен
func (d ProfileDocument) Missing() bool {
	return d.FileName == "" && !d.Optional
}

type profileDocumentPayload struct {
	Tag      flexString `json:"tag"`
	CertTag  flexString `json:"cert_tag"`
	FileName flexString `json:"file_name"`
	Approved flexBool   `json:"isApproved"`
	Optional flexBool   `json:"optional"`
}

func (p profileDocumentPayload) document() ProfileDocument {
	tag := string(p.Tag)
	if tag == "" {
		tag = string(p.CertTag)
	}
	return ProfileDocument{
		Tag:      tag,
		FileName: string(p.FileName),
		Approved: bool(p.Approved),
		Optional: bool(p.Optional),
	}
}

type profilePayload struct {
	envelope
	Data struct {
		Address                 flexString               `json:"address"`
		City                    flexString               `json:"city"`
		Province                flexString               `json:"province"`
		PostalCode              flexString               `json:"postal_code"`
		DateOfBirth             flexString               `json:"dob"`
		ContactNumber           flexString               `json:"contact_number"`
		DriverLicenseExpiryDate flexString               `json:"driver_license_expiry_date"`
		Documents               []profileDocumentPayload `json:"documents"`
		Certifications          []profileDocumentPayload `json:"certifications"`
	} `json:"data"`
}
