/*
 * Copyright 2024 SRVX Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package report

import (
	"encoding/json"
	"sync"

	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
	"gorm.io/gorm"

	"github.com/srvx-project/srvx-sdk/database"
	"github.com/srvx-project/srvx-sdk/service"
)

const (
	ServiceName = "reports"
	TableName   = "violations"
)

func Logger(l log.Logger) log.Logger {
	return l.WithFields(log.Fields{log.FieldKeyModule: "report"})
}

// Violation is a stored content-security-policy violation report.
type Violation struct {
	database.Model
	TraceID            string `json:"trace_id,omitempty"`
	DocumentURI        string `json:"document_uri"`
	ViolatedDirective  string `json:"violated_directive"`
	EffectiveDirective string `json:"effective_directive,omitempty"`
	BlockedURI         string `json:"blocked_uri,omitempty"`
	SourceFile         string `json:"source_file,omitempty"`
	LineNumber         uint   `json:"line_number,omitempty"`
	ColumnNumber       uint   `json:"column_number,omitempty"`
	Disposition        string `json:"disposition,omitempty"`
	UserAgent          string `json:"user_agent,omitempty"`
}

// Service stores violation reports and fans each accepted report out to
// subscribers. Its operations are exposed through the service registry, see
// Definition.
type Service struct {
	r     database.Repository[Violation]
	mtx   sync.Mutex
	subID int
	subs  map[int]chan *Violation
	l     log.Logger
}

func NewService(db *gorm.DB, l log.Logger) (*Service, error) {
	r, err := database.NewTableRepository[Violation](db, TableName)
	if err != nil {
		return nil, err
	}
	return &Service{
		r:    r,
		subs: make(map[int]chan *Violation),
		l:    Logger(l),
	}, nil
}

// Definition exposes submit, list and count as dispatchable methods.
func (s *Service) Definition() (service.Definition, error) {
	return service.DefineService(map[string]interface{}{
		"submit": service.MethodSpec{
			Handler: s.submit,
			Params:  service.ValidatorFunc(validateSubmitParams),
		},
		"list":  service.Handler(s.list),
		"count": service.Handler(s.count),
	})
}

// Subscribe registers a listener for accepted reports. The returned cancel
// func must be called to release the subscription; slow listeners drop
// reports instead of blocking submission.
func (s *Service) Subscribe() (<-chan *Violation, func()) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	id := s.subID
	s.subID++
	ch := make(chan *Violation, 16)
	s.subs[id] = ch
	return ch, func() {
		s.mtx.Lock()
		defer s.mtx.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

func (s *Service) notify(v *Violation) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- v:
		default:
			s.l.Debugf("drop notify id:%d violation:%d", id, v.ID)
		}
	}
}

func validateSubmitParams(v interface{}) (interface{}, error) {
	p, ok := v.(service.Params)
	if !ok {
		return nil, errors.Errorf("not support params type %T", v)
	}
	if s, ok := p["document_uri"].(string); !ok || len(s) == 0 {
		return nil, errors.New("document_uri required")
	}
	if s, ok := p["violated_directive"].(string); !ok || len(s) == 0 {
		return nil, errors.New("violated_directive required")
	}
	return p, nil
}

func (s *Service) submit(ctx *service.CallContext, params service.Params) (service.Result, error) {
	v := &Violation{}
	if err := decodeParams(params, v); err != nil {
		return nil, err
	}
	v.Model = database.Model{}
	v.TraceID = ctx.TraceID
	if err := s.r.Save(v); err != nil {
		return nil, err
	}
	ctx.Logger.Debugf("violation accepted id:%d directive:%s", v.ID, v.ViolatedDirective)
	s.notify(v)
	return service.Result{"id": v.ID}, nil
}

func (s *Service) list(ctx *service.CallContext, params service.Params) (service.Result, error) {
	p := database.Pageable{Sort: "id desc"}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	page, err := s.r.Page(p, nil)
	if err != nil {
		return nil, err
	}
	return toResult(page)
}

func (s *Service) count(ctx *service.CallContext, params service.Params) (service.Result, error) {
	count, err := s.r.Count(nil)
	if err != nil {
		return nil, err
	}
	return service.Result{"count": count}, nil
}

func decodeParams(params service.Params, v interface{}) error {
	b, err := json.Marshal(params)
	if err != nil {
		return errors.Wrapf(err, "fail to Marshal err:%s", err.Error())
	}
	if err = json.Unmarshal(b, v); err != nil {
		return errors.Wrapf(err, "fail to Unmarshal err:%s", err.Error())
	}
	return nil
}

func toResult(v interface{}) (service.Result, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to Marshal err:%s", err.Error())
	}
	r := service.Result{}
	if err = json.Unmarshal(b, &r); err != nil {
		return nil, errors.Wrapf(err, "fail to Unmarshal err:%s", err.Error())
	}
	return r, nil
}
