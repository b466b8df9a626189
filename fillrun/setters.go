package fillrun

func SetStatus(status Status) UpdateSetter {
	return func(r *Run) error {
		if !status.IsValid() {
			return ErrInvalidStatus
		}
		r.Status = status
		return nil
	}
}

func SetMessage(message string) UpdateSetter {
	return func(r *Run) error {
		r.Message = message
		return nil
	}
}

func SetSnapshotID(id string) UpdateSetter {
	return func(r *Run) error {
		r.SnapshotID = id
		return nil
	}
}
