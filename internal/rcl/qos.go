package rcl

import (
	"fmt"
	"strings"
	"time"
)

// HistoryPolicy controls how many samples a queue keeps.
type HistoryPolicy int

const (
	HistorySystemDefault HistoryPolicy = iota
	HistoryKeepLast
	HistoryKeepAll
)

// ReliabilityPolicy controls delivery guarantees.
type ReliabilityPolicy int

const (
	ReliabilitySystemDefault ReliabilityPolicy = iota
	ReliabilityReliable
	ReliabilityBestEffort
)

// DurabilityPolicy controls whether late joiners receive old samples.
type DurabilityPolicy int

const (
	DurabilitySystemDefault DurabilityPolicy = iota
	DurabilityTransientLocal
	DurabilityVolatile
)

// LivelinessPolicy controls how an endpoint asserts it is alive.
type LivelinessPolicy int

const (
	LivelinessSystemDefault LivelinessPolicy = iota
	LivelinessAutomatic
	LivelinessManualByTopic
)

// QoSProfile is a quality of service profile. A zero duration means
// unspecified, which is treated as infinite.
type QoSProfile struct {
	History                 HistoryPolicy
	Depth                   int
	Reliability             ReliabilityPolicy
	Durability              DurabilityPolicy
	Deadline                time.Duration
	Lifespan                time.Duration
	Liveliness              LivelinessPolicy
	LivelinessLeaseDuration time.Duration
}

// Presets matching the standard rmw profiles.
var (
	QoSDefault = QoSProfile{
		History: HistoryKeepLast, Depth: 10,
		Reliability: ReliabilityReliable, Durability: DurabilityVolatile,
		Liveliness: LivelinessAutomatic,
	}
	QoSSensorData = QoSProfile{
		History: HistoryKeepLast, Depth: 5,
		Reliability: ReliabilityBestEffort, Durability: DurabilityVolatile,
		Liveliness: LivelinessAutomatic,
	}
	QoSParameterEvents = QoSProfile{
		History: HistoryKeepLast, Depth: 1000,
		Reliability: ReliabilityReliable, Durability: DurabilityVolatile,
		Liveliness: LivelinessAutomatic,
	}
	QoSServicesDefault = QoSProfile{
		History: HistoryKeepLast, Depth: 10,
		Reliability: ReliabilityReliable, Durability: DurabilityVolatile,
		Liveliness: LivelinessAutomatic,
	}
	QoSKeepAll = QoSProfile{
		History:     HistoryKeepAll,
		Reliability: ReliabilityReliable, Durability: DurabilityVolatile,
		Liveliness: LivelinessAutomatic,
	}
	QoSTransientLocal = QoSProfile{
		History: HistoryKeepLast, Depth: 1,
		Reliability: ReliabilityReliable, Durability: DurabilityTransientLocal,
		Liveliness: LivelinessAutomatic,
	}
	QoSSystemDefault = QoSProfile{}
)

// queueDepth is the number of samples a KeepLast queue holds; 0 means
// unbounded.
func (q QoSProfile) queueDepth() int {
	switch q.History {
	case HistoryKeepAll:
		return 0
	case HistoryKeepLast:
		if q.Depth < 1 {
			return 1
		}
		return q.Depth
	default:
		return QoSDefault.Depth
	}
}

// Validate rejects profiles that cannot be used to create an endpoint.
func (q QoSProfile) Validate() error {
	if q.History == HistoryKeepLast && q.Depth < 1 {
		return newError(ErrCodeInvalidArgument, "KeepLast history requires depth >= 1, got %d", q.Depth)
	}
	if q.Depth < 0 {
		return newError(ErrCodeInvalidArgument, "depth must not be negative")
	}
	if q.Deadline < 0 || q.Lifespan < 0 || q.LivelinessLeaseDuration < 0 {
		return newError(ErrCodeInvalidArgument, "durations must not be negative")
	}
	return nil
}

// QoSCompatibility is the outcome of a compatibility check.
type QoSCompatibility int

const (
	QoSCompatibilityOK QoSCompatibility = iota
	QoSCompatibilityWarning
	QoSCompatibilityError
)

// String returns the compatibility name.
func (c QoSCompatibility) String() string {
	switch c {
	case QoSCompatibilityOK:
		return "OK"
	case QoSCompatibilityWarning:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// QoSCheckResult is returned by CheckCompatible.
type QoSCheckResult struct {
	Compatibility QoSCompatibility
	Reason        string
}

func isInfinite(d time.Duration) bool {
	return d == 0
}

// CheckCompatible reports whether a publisher with profile pub can deliver to
// a subscription with profile sub. Errors mean no delivery. Warnings are given
// when a system default policy makes the outcome depend on the middleware.
func CheckCompatible(pub, sub QoSProfile) QoSCheckResult {
	var errs, warns []string

	switch {
	case pub.Reliability == ReliabilityBestEffort && sub.Reliability == ReliabilityReliable:
		errs = append(errs, "best effort publisher and reliable subscription")
	case pub.Reliability == ReliabilitySystemDefault && sub.Reliability == ReliabilityReliable:
		warns = append(warns, "publisher reliability is system default and subscription is reliable")
	case pub.Reliability == ReliabilityBestEffort && sub.Reliability == ReliabilitySystemDefault:
		warns = append(warns, "best effort publisher and subscription reliability is system default")
	}

	switch {
	case pub.Durability == DurabilityVolatile && sub.Durability == DurabilityTransientLocal:
		errs = append(errs, "volatile publisher and transient local subscription")
	case pub.Durability == DurabilitySystemDefault && sub.Durability == DurabilityTransientLocal:
		warns = append(warns, "publisher durability is system default and subscription is transient local")
	case pub.Durability == DurabilityVolatile && sub.Durability == DurabilitySystemDefault:
		warns = append(warns, "volatile publisher and subscription durability is system default")
	}

	if !isInfinite(sub.Deadline) {
		if isInfinite(pub.Deadline) {
			errs = append(errs, "subscription has a deadline, but publisher does not")
		} else if pub.Deadline > sub.Deadline {
			errs = append(errs, fmt.Sprintf("publisher deadline %s exceeds subscription deadline %s", pub.Deadline, sub.Deadline))
		}
	}

	switch {
	case pub.Liveliness == LivelinessAutomatic && sub.Liveliness == LivelinessManualByTopic:
		errs = append(errs, "publisher's liveliness is automatic and subscription's is manual by topic")
	case pub.Liveliness == LivelinessSystemDefault && sub.Liveliness == LivelinessManualByTopic:
		warns = append(warns, "publisher liveliness is system default and subscription is manual by topic")
	}

	if !isInfinite(sub.LivelinessLeaseDuration) {
		if isInfinite(pub.LivelinessLeaseDuration) {
			errs = append(errs, "subscription has a liveliness lease duration, but publisher does not")
		} else if pub.LivelinessLeaseDuration > sub.LivelinessLeaseDuration {
			errs = append(errs, fmt.Sprintf("publisher lease duration %s exceeds subscription lease duration %s",
				pub.LivelinessLeaseDuration, sub.LivelinessLeaseDuration))
		}
	}

	switch {
	case len(errs) > 0:
		return QoSCheckResult{Compatibility: QoSCompatibilityError, Reason: "ERROR: " + strings.Join(errs, "; ")}
	case len(warns) > 0:
		return QoSCheckResult{Compatibility: QoSCompatibilityWarning, Reason: "WARNING: " + strings.Join(warns, "; ")}
	default:
		return QoSCheckResult{Compatibility: QoSCompatibilityOK}
	}
}
