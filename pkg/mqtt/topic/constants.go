package topic

// Wildcard matches exactly one topic level.
const Wildcard = "+"
