package models

// Opaque identifier types for the reference entities. Reference data always
// travels with its typed identifier so a stop ID can never be passed where a
// bus ID is expected.

type BusID string

type UserID string

type LocationID string

type StopID string

func (id BusID) String() string { return string(id) }

func (id UserID) String() string { return string(id) }

func (id LocationID) String() string { return string(id) }

func (id StopID) String() string { return string(id) }
