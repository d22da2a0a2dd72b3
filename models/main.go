package models

import "time"

// UserState is the per-user conversation FSM state. Which inbound text or
// callback is meaningful at any moment is decided entirely by this value.
type UserState string

const (
	StateIdle UserState = "IDLE"

	StateOnboardingMedicalConfirm UserState = "ONBOARDING_MEDICAL_CONFIRM"
	StateOnboardingEquipment      UserState = "ONBOARDING_EQUIPMENT"
	StateOnboardingExperience     UserState = "ONBOARDING_EXPERIENCE"
	StateOnboardingPersonalData   UserState = "ONBOARDING_PERSONAL_DATA"
	StateOnboardingGoals          UserState = "ONBOARDING_GOALS"

	StateWorkoutRequested       UserState = "WORKOUT_REQUESTED"
	StateWorkoutInProgress      UserState = "WORKOUT_IN_PROGRESS"
	StateWorkoutFeedbackPending UserState = "WORKOUT_FEEDBACK_PENDING"

	StateEditEquipment    UserState = "EDIT_EQUIPMENT"
	StateEditExperience   UserState = "EDIT_EXPERIENCE"
	StateEditPersonalData UserState = "EDIT_PERSONAL_DATA"
	StateEditGoal         UserState = "EDIT_GOAL"

	StateSchedulingDate UserState = "SCHEDULING_DATE"
)

type ExperienceLevel string

const (
	ExperienceBeginner ExperienceLevel = "BEGINNER"
	ExperienceAmateur  ExperienceLevel = "AMATEUR"
	ExperiencePro      ExperienceLevel = "PRO"
)

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

type SubscriptionType string

const (
	SubscriptionFree    SubscriptionType = "FREE"
	SubscriptionPremium SubscriptionType = "PREMIUM"
)

type Subscription struct {
	Type      SubscriptionType `bson:"type"`
	ExpiresAt *time.Time       `bson:"expiresAt,omitempty"`
}

type ProfileData struct {
	Weights    []int           `bson:"weights"`
	Experience ExperienceLevel `bson:"experience"`
	BodyWeight float64         `bson:"bodyWeight"`
	Gender     Gender          `bson:"gender"`
	Goal       string          `bson:"goal"`
}

type UserMetadata struct {
	CreatedAt  time.Time `bson:"createdAt"`
	LastActive time.Time `bson:"lastActive"`
}

// UserScheduling holds the next planned workout time and which reminders for
// it have already gone out. The two flags are independent.
type UserScheduling struct {
	NextWorkout    time.Time `bson:"nextWorkout"`
	Reminder1hSent bool      `bson:"reminder1hSent"`
	Reminder5mSent bool      `bson:"reminder5mSent"`
}

// UserProfile is the aggregate root for everything we know about a user. A
// profile whose FSMState is not IDLE is mid-flow and must not start a new one.
type UserProfile struct {
	ID            int64           `bson:"_id"`
	FSMState      UserState       `bson:"fsmState"`
	Profile       ProfileData     `bson:"profile"`
	Subscription  Subscription    `bson:"subscription"`
	Metadata      UserMetadata    `bson:"metadata"`
	Scheduling    *UserScheduling `bson:"scheduling,omitempty"`
	SchemaVersion int             `bson:"schemaVersion"`
}

type WorkoutStatus string

const (
	WorkoutPlanned    WorkoutStatus = "PLANNED"
	WorkoutInProgress WorkoutStatus = "IN_PROGRESS"
	WorkoutCompleted  WorkoutStatus = "COMPLETED"
	WorkoutCancelled  WorkoutStatus = "CANCELLED"
)

// Exercise carries either Reps+Sets or TimeWork+TimeRest, never both.
type Exercise struct {
	Name         string `bson:"name"`
	Weight       int    `bson:"weight"`
	Reps         *int   `bson:"reps,omitempty"`
	Sets         *int   `bson:"sets,omitempty"`
	TimeWork     *int   `bson:"timeWork,omitempty"`
	TimeRest     *int   `bson:"timeRest,omitempty"`
	CoachingTips string `bson:"coachingTips,omitempty"`
}

type WorkoutPlan struct {
	Warmup    string     `bson:"warmup"`
	Exercises []Exercise `bson:"exercises"`
	Cooldown  string     `bson:"cooldown"`
}

// ExercisePerformance is one normalized performance record. Family-specific
// counting conventions (unilateral side-summing, timed-as-reps, rounds-as-sets)
// are already resolved by the time a record reaches this struct.
type ExercisePerformance struct {
	Name      string `bson:"name"`
	Weight    int    `bson:"weight"`
	Reps      int    `bson:"reps"`
	Sets      int    `bson:"sets"`
	Completed bool   `bson:"completed"`
	Status    string `bson:"status,omitempty"` // completed, partial, failed
}

type ActualPerformance struct {
	RawFeedback    string                `bson:"rawFeedback"`
	Data           []ExercisePerformance `bson:"data"`
	RPE            *int                  `bson:"rpe,omitempty"`
	Issues         []string              `bson:"issues,omitempty"` // red_flags in the AI contract
	RecoveryStatus string                `bson:"recoveryStatus,omitempty"`
	TechnicalNotes string                `bson:"technicalNotes,omitempty"`
	CoachFeedback  string                `bson:"coachFeedback,omitempty"`
}

type WorkoutTiming struct {
	StartedAt       *time.Time `bson:"startedAt,omitempty"`
	CompletedAt     *time.Time `bson:"completedAt,omitempty"`
	DurationSeconds int64      `bson:"durationSeconds"`
}

// AILog accumulates usage metadata across the AI calls a workout triggers.
// Token counts are additive; latencies are per phase.
type AILog struct {
	TokensUsed           int    `bson:"tokensUsed"`
	ModelVersion         string `bson:"modelVersion"`
	PlanGenerationTime   int64  `bson:"planGenerationTime"`
	FeedbackAnalysisTime int64  `bson:"feedbackAnalysisTime,omitempty"`
	FinishReason         string `bson:"finishReason,omitempty"`
}

// Workout is the aggregate root of one plan-generation attempt. Status only
// advances forward; ActualPerformance is set exactly once, by feedback
// processing.
type Workout struct {
	ID                string             `bson:"_id"`
	UserID            int64              `bson:"userId"`
	Status            WorkoutStatus      `bson:"status"`
	Plan              WorkoutPlan        `bson:"plan"`
	ActualPerformance *ActualPerformance `bson:"actualPerformance,omitempty"`
	Timing            WorkoutTiming      `bson:"timing"`
	AILog             AILog              `bson:"aiLog"`
	SchemaVersion     int                `bson:"schemaVersion"`
}

// WorkoutContext is the transient input to plan generation. Never persisted.
type WorkoutContext struct {
	Profile          UserProfile
	RecentWorkouts   []Workout
	AvailableWeights []int
	TrainingWeek     int
	SuggestDeload    bool
}

type EventType string

const (
	EventCommand     EventType = "COMMAND"
	EventStateChange EventType = "STATE_CHANGE"
	EventAction      EventType = "ACTION"
	EventError       EventType = "ERROR"
)

type AnalyticsEvent struct {
	ID        string            `bson:"_id"`
	UserID    int64             `bson:"userId"`
	Type      EventType         `bson:"type"`
	Name      string            `bson:"name"`
	Metadata  map[string]string `bson:"metadata,omitempty"`
	Timestamp time.Time         `bson:"timestamp"`
}
