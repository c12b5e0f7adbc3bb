package postgres

const (
	messageColumns = `id, room, username, text, display_time, seen_by, created_at, updated_at`

	QueryInsertMessage = `
		INSERT INTO room_messages (id, room, username, text, display_time, seen_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	QueryListMessagesByRoom = `
		SELECT ` + messageColumns + `
		FROM room_messages
		WHERE room = $1
		ORDER BY created_at ASC, seq ASC`

	// проверка автора и запись - одним выражением
	QueryUpdateMessageByAuthor = `
		UPDATE room_messages
		SET text = $3, display_time = $4, updated_at = $5
		WHERE id = $1 AND username = $2
		RETURNING ` + messageColumns

	QueryDeleteMessageByAuthor = `
		DELETE FROM room_messages
		WHERE id = $1 AND username = $2
		RETURNING ` + messageColumns

	QueryMessageExists = `SELECT EXISTS(SELECT 1 FROM room_messages WHERE id = $1)`

	QueryMarkSeen = `
		UPDATE room_messages
		SET seen_by = array_append(seen_by, $2)
		WHERE room = $1 AND NOT ($2 = ANY(seen_by))`

	QueryInsertPoll = `
		INSERT INTO polls (id, room, question, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	QueryInsertPollOption = `
		INSERT INTO poll_options (poll_id, position, label)
		VALUES ($1, $2, $3)`

	QueryGetPoll = `
		SELECT id, room, question, created_at, updated_at
		FROM polls
		WHERE id = $1`

	QueryListPollsByRoom = `
		SELECT id, room, question, created_at, updated_at
		FROM polls
		WHERE room = $1
		ORDER BY created_at ASC, seq ASC`

	QueryListPollOptions = `
		SELECT poll_id, label, votes, voted_by
		FROM poll_options
		WHERE poll_id = ANY($1)
		ORDER BY poll_id, position`

	// блокируем строку опроса: параллельные голоса по нему ждут
	QueryLockPoll = `SELECT id FROM polls WHERE id = $1 FOR UPDATE`

	QueryHasVoted = `
		SELECT EXISTS(
			SELECT 1 FROM poll_options
			WHERE poll_id = $1 AND $2 = ANY(voted_by))`

	QueryApplyVote = `
		UPDATE poll_options
		SET votes = votes + 1, voted_by = array_append(voted_by, $2)
		WHERE poll_id = $1 AND label = $3`

	QueryTouchPoll = `UPDATE polls SET updated_at = $2 WHERE id = $1`
)
