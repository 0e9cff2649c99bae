package scheduler

import (
	"encoding/json"
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

const stateVersion = 1

// jobState - сериализованная форма задачи (колонка job_state).
type jobState struct {
	Version     int         `json:"version"`
	ID          string      `json:"id"`
	Func        string      `json:"func"`
	Kwargs      Kwargs      `json:"kwargs,omitempty"`
	Trigger     TriggerSpec `json:"trigger"`
	NextRunTime *time.Time  `json:"next_run_time,omitempty"`
}

// MarshalJobState сериализует задачу для долговременного хранилища.
func MarshalJobState(j *Job) ([]byte, error) {
	if j.Trigger == nil {
		return nil, errors.Wrapf(ErrInvalidTrigger, "job %q has no trigger", j.ID)
	}
	st := jobState{
		Version:     stateVersion,
		ID:          j.ID,
		Func:        j.Func,
		Kwargs:      j.Kwargs,
		Trigger:     j.Trigger.Spec(),
		NextRunTime: j.NextRunTime,
	}
	return json.Marshal(st)
}

// UnmarshalJobState восстанавливает задачу, записанную MarshalJobState.
func UnmarshalJobState(data []byte, store string) (*Job, error) {
	var st jobState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrap(err, "decode job state")
	}
	if st.Version != stateVersion {
		return nil, errors.Newf("unsupported job state version %d", st.Version)
	}
	trig, err := DecodeTrigger(st.Trigger)
	if err != nil {
		return nil, errors.Wrapf(err, "job %q", st.ID)
	}
	job := &Job{
		ID:      st.ID,
		Func:    st.Func,
		Kwargs:  st.Kwargs,
		Trigger: trig,
		Store:   store,
	}
	if st.NextRunTime != nil {
		next := st.NextRunTime.UTC()
		job.NextRunTime = &next
	}
	return job, nil
}

// EpochSeconds переводит время в секунды Unix с дробной частью (колонка next_run_time).
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// FromEpochSeconds выполняет обратное преобразование с точностью до микросекунд.
func FromEpochSeconds(s float64) time.Time {
	return time.UnixMicro(int64(math.Round(s * 1e6))).UTC()
}
