// Package queue keeps the patient queue and the doctor session. Entries move
// pending → in_progress → completed; the session points at the patient
// currently in consultation.
package queue
