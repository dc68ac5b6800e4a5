// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"

	"github.com/poiesic/attestor/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalEvidenceUnit serializes an EvidenceUnit to bytes.
func MarshalEvidenceUnit(unit *core.EvidenceUnit) []byte {
	buf := make([]byte, core.EvidenceUnitMUS.Size(*unit))
	core.EvidenceUnitMUS.Marshal(*unit, buf)
	return buf
}

// UnmarshalEvidenceUnit deserializes an EvidenceUnit from bytes.
func UnmarshalEvidenceUnit(data []byte) (*core.EvidenceUnit, error) {
	unit, _, err := core.EvidenceUnitMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &unit, nil
}

// MarshalVectorRecord serializes a VectorRecord to bytes.
func MarshalVectorRecord(record *core.VectorRecord) []byte {
	buf := make([]byte, core.VectorRecordMUS.Size(*record))
	core.VectorRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalVectorRecord deserializes a VectorRecord from bytes.
func UnmarshalVectorRecord(data []byte) (*core.VectorRecord, error) {
	record, _, err := core.VectorRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}

// MarshalQueueEntry serializes a QueueEntry to bytes.
func MarshalQueueEntry(entry *core.QueueEntry) []byte {
	buf := make([]byte, core.QueueEntryMUS.Size(*entry))
	core.QueueEntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalQueueEntry deserializes a QueueEntry from bytes.
func UnmarshalQueueEntry(data []byte) (*core.QueueEntry, error) {
	entry, _, err := core.QueueEntryMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &entry, nil
}

// MarshalQueryRun serializes a QueryRun to bytes.
func MarshalQueryRun(run *core.QueryRun) []byte {
	buf := make([]byte, core.QueryRunMUS.Size(*run))
	core.QueryRunMUS.Marshal(*run, buf)
	return buf
}

// UnmarshalQueryRun deserializes a QueryRun from bytes.
func UnmarshalQueryRun(data []byte) (*core.QueryRun, error) {
	run, _, err := core.QueryRunMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &run, nil
}

// MarshalCitationRecord serializes a CitationRecord to bytes.
func MarshalCitationRecord(record *core.CitationRecord) []byte {
	buf := make([]byte, core.CitationRecordMUS.Size(*record))
	core.CitationRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalCitationRecord deserializes a CitationRecord from bytes.
func UnmarshalCitationRecord(data []byte) (*core.CitationRecord, error) {
	record, _, err := core.CitationRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}
