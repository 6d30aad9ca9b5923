package driver

const (
	EnsureIndexMetaQuery = `
		MERGE (m:IndexMeta {table: $table})
		ON CREATE SET m.dimension = $dimension,
			m.model = $model
		RETURN m.dimension AS dimension, m.model AS model
	`

	UpsertTranscriptsQuery = `
		UNWIND $rows AS row
		MERGE (t:Transcript {video_id: row.video_id})
		ON CREATE SET t.seq = row.seq
		SET t.title = row.title,
			t.text = row.text,
			t.embedding = row.embedding
		RETURN count(t) AS upserted
	`

	DeleteAllTranscriptsQuery = `
		MATCH (t:Transcript)
		DETACH DELETE t
	`

	ListTranscriptsQuery = `
		MATCH (t:Transcript)
		RETURN t.video_id AS video_id,
			t.title AS title,
			t.text AS text,
			t.embedding AS embedding
		ORDER BY t.seq
	`

	CountTranscriptsQuery = `
		MATCH (t:Transcript)
		RETURN count(t) AS n
	`
)
