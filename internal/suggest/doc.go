// Package suggest merges decision-support suggestions from the generation
// service and the suggestion service, infers which actions each allows,
// and applies accepted actions to a clinical record.
package suggest
