package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// Виды триггеров в сериализованном состоянии задачи.
const (
	KindDate     = "date"
	KindInterval = "interval"
	KindCron     = "cron"
	KindOr       = "or"
)

// Trigger определяет, когда задача должна сработать.
//
// Next получает время предыдущего срабатывания (нулевое, если задача ещё
// не срабатывала) и текущее время. Возвращает false, если срабатываний
// больше не будет.
type Trigger interface {
	Next(prev, now time.Time) (time.Time, bool)
	Spec() TriggerSpec
	String() string
}

// TriggerSpec - сериализуемое описание триггера.
type TriggerSpec struct {
	Kind      string        `json:"kind"`
	At        *time.Time    `json:"at,omitempty"`
	Every     string        `json:"every,omitempty"`
	Start     *time.Time    `json:"start,omitempty"`
	Minute    string        `json:"minute,omitempty"`
	Hour      string        `json:"hour,omitempty"`
	DayOfWeek string        `json:"day_of_week,omitempty"`
	Timezone  string        `json:"timezone,omitempty"`
	Triggers  []TriggerSpec `json:"triggers,omitempty"`
}

// DateTrigger срабатывает один раз в момент At.
type DateTrigger struct {
	At time.Time
}

// At создаёт одноразовый триггер.
func At(t time.Time) *DateTrigger {
	return &DateTrigger{At: t.UTC()}
}

// Next реализует Trigger. После срабатывания в At или позже триггер
// исчерпан; внутри Or он не мешает более поздним датам.
func (t *DateTrigger) Next(prev, _ time.Time) (time.Time, bool) {
	if prev.IsZero() || t.At.After(prev) {
		return t.At, true
	}
	return time.Time{}, false
}

// Spec реализует Trigger.
func (t *DateTrigger) Spec() TriggerSpec {
	at := t.At.UTC()
	return TriggerSpec{Kind: KindDate, At: &at}
}

func (t *DateTrigger) String() string {
	return "date[" + t.At.UTC().Format(time.RFC3339) + "]"
}

// IntervalTrigger срабатывает каждые Every, начиная со Start.
type IntervalTrigger struct {
	Every time.Duration
	Start time.Time
}

// Every создаёт интервальный триггер. Первое срабатывание - через every.
func Every(every time.Duration) *IntervalTrigger {
	return &IntervalTrigger{Every: every}
}

// Next реализует Trigger.
func (t *IntervalTrigger) Next(prev, now time.Time) (time.Time, bool) {
	if t.Every <= 0 {
		return time.Time{}, false
	}
	start := t.Start
	if start.IsZero() {
		return now.Add(t.Every), true
	}
	next := start
	if !now.Before(start) {
		k := now.Sub(start)/t.Every + 1
		next = start.Add(k * t.Every)
	}
	if !prev.IsZero() && !next.After(prev) {
		next = prev.Add(t.Every)
	}
	return next, true
}

// anchor фиксирует Start, чтобы расписание не дрейфовало между срабатываниями.
func (t *IntervalTrigger) anchor(now time.Time) Trigger {
	if !t.Start.IsZero() {
		return t
	}
	return &IntervalTrigger{Every: t.Every, Start: now.Add(t.Every).UTC()}
}

// Spec реализует Trigger.
func (t *IntervalTrigger) Spec() TriggerSpec {
	spec := TriggerSpec{Kind: KindInterval, Every: t.Every.String()}
	if !t.Start.IsZero() {
		start := t.Start.UTC()
		spec.Start = &start
	}
	return spec
}

func (t *IntervalTrigger) String() string {
	return "interval[" + t.Every.String() + "]"
}

// CronTrigger срабатывает по полям crontab: минута, час, дни недели.
type CronTrigger struct {
	Minute    string
	Hour      string
	DayOfWeek string
	Timezone  string

	schedule cron.Schedule
}

// Cron создаёт cron-триггер. Пустые поля означают "*".
// Пример: Cron("40", "12", "sun,wed", "UTC").
func Cron(minute, hour, dayOfWeek, timezone string) (*CronTrigger, error) {
	t := &CronTrigger{
		Minute:    orStar(minute),
		Hour:      orStar(hour),
		DayOfWeek: orStar(dayOfWeek),
		Timezone:  timezone,
	}
	expr := fmt.Sprintf("%s %s * * %s", t.Minute, t.Hour, t.DayOfWeek)
	if t.Timezone != "" {
		expr = "CRON_TZ=" + t.Timezone + " " + expr
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidTrigger, "cron %q: %v", expr, err)
	}
	t.schedule = sched
	return t, nil
}

// MustCron как Cron, но паникует при ошибке. Для статических расписаний.
func MustCron(minute, hour, dayOfWeek, timezone string) *CronTrigger {
	t, err := Cron(minute, hour, dayOfWeek, timezone)
	if err != nil {
		panic(err)
	}
	return t
}

func orStar(s string) string {
	if strings.TrimSpace(s) == "" {
		return "*"
	}
	return strings.TrimSpace(s)
}

// Next реализует Trigger. Следующее срабатывание всегда строго позже
// и now, и предыдущего срабатывания.
func (t *CronTrigger) Next(prev, now time.Time) (time.Time, bool) {
	ref := now
	if prev.After(ref) {
		ref = prev
	}
	next := t.schedule.Next(ref)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next.UTC(), true
}

// Spec реализует Trigger.
func (t *CronTrigger) Spec() TriggerSpec {
	return TriggerSpec{
		Kind:      KindCron,
		Minute:    t.Minute,
		Hour:      t.Hour,
		DayOfWeek: t.DayOfWeek,
		Timezone:  t.Timezone,
	}
}

func (t *CronTrigger) String() string {
	return fmt.Sprintf("cron[minute=%s, hour=%s, day_of_week=%s]", t.Minute, t.Hour, t.DayOfWeek)
}

// OrTrigger срабатывает по ближайшему из вложенных триггеров.
type OrTrigger struct {
	Triggers []Trigger
}

// Or объединяет триггеры.
func Or(triggers ...Trigger) *OrTrigger {
	return &OrTrigger{Triggers: triggers}
}

// Next реализует Trigger.
func (t *OrTrigger) Next(prev, now time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	for _, child := range t.Triggers {
		next, ok := child.Next(prev, now)
		if !ok {
			continue
		}
		if !found || next.Before(best) {
			best = next
			found = true
		}
	}
	return best, found
}

func (t *OrTrigger) anchor(now time.Time) Trigger {
	out := make([]Trigger, len(t.Triggers))
	for i, child := range t.Triggers {
		out[i] = anchorTrigger(child, now)
	}
	return &OrTrigger{Triggers: out}
}

// Spec реализует Trigger.
func (t *OrTrigger) Spec() TriggerSpec {
	spec := TriggerSpec{Kind: KindOr, Triggers: make([]TriggerSpec, 0, len(t.Triggers))}
	for _, child := range t.Triggers {
		spec.Triggers = append(spec.Triggers, child.Spec())
	}
	return spec
}

func (t *OrTrigger) String() string {
	parts := make([]string, 0, len(t.Triggers))
	for _, child := range t.Triggers {
		parts = append(parts, child.String())
	}
	return "or[" + strings.Join(parts, ", ") + "]"
}

type anchorer interface {
	anchor(now time.Time) Trigger
}

func anchorTrigger(t Trigger, now time.Time) Trigger {
	if a, ok := t.(anchorer); ok {
		return a.anchor(now)
	}
	return t
}

// DecodeTrigger восстанавливает триггер из сериализованного описания.
func DecodeTrigger(spec TriggerSpec) (Trigger, error) {
	switch spec.Kind {
	case KindDate:
		if spec.At == nil {
			return nil, errors.Wrap(ErrInvalidTrigger, "date trigger without time")
		}
		return At(*spec.At), nil
	case KindInterval:
		every, err := time.ParseDuration(spec.Every)
		if err != nil || every <= 0 {
			return nil, errors.Wrapf(ErrInvalidTrigger, "interval %q", spec.Every)
		}
		t := &IntervalTrigger{Every: every}
		if spec.Start != nil {
			t.Start = spec.Start.UTC()
		}
		return t, nil
	case KindCron:
		return Cron(spec.Minute, spec.Hour, spec.DayOfWeek, spec.Timezone)
	case KindOr:
		if len(spec.Triggers) == 0 {
			return nil, errors.Wrap(ErrInvalidTrigger, "empty or trigger")
		}
		children := make([]Trigger, 0, len(spec.Triggers))
		for _, s := range spec.Triggers {
			child, err := DecodeTrigger(s)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return Or(children...), nil
	default:
		return nil, errors.Wrapf(ErrInvalidTrigger, "unknown trigger kind %q", spec.Kind)
	}
}
