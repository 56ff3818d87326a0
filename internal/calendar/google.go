package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleHolidays looks holidays up in a public Google calendar, such as
// "en.usa#holiday@group.v.calendar.google.com".  Any all-day event on a
// date makes it a holiday.
type GoogleHolidays struct {
	svc        *gcal.Service
	calendarID string
	loc        *time.Location
}

// NewGoogleHolidays builds the Calendar API client.  Public holiday
// calendars only need an API key; extra options (endpoint, HTTP client)
// are passed through.
func NewGoogleHolidays(ctx context.Context, apiKey, calendarID string, loc *time.Location, opts ...option.ClientOption) (*GoogleHolidays, error) {
	if loc == nil {
		loc = time.UTC
	}
	if apiKey != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return &GoogleHolidays{svc: svc, calendarID: calendarID, loc: loc}, nil
}

// IsHoliday implements HolidaySource.
func (g *GoogleHolidays) IsHoliday(ctx context.Context, date string) (bool, error) {
	day, err := time.ParseInLocation(dateLayout, date, g.loc)
	if err != nil {
		return false, err
	}
	events, err := g.svc.Events.List(g.calendarID).
		TimeMin(day.Format(time.RFC3339)).
		TimeMax(day.AddDate(0, 0, 1).Format(time.RFC3339)).
		SingleEvents(true).
		MaxResults(10).
		Context(ctx).
		Do()
	if err != nil {
		return false, fmt.Errorf("list holidays for %s: %w", date, err)
	}
	for _, ev := range events.Items {
		if ev.Start != nil && ev.Start.Date == date {
			return true, nil
		}
	}
	return false, nil
}
