package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/kintai/internal/model"
)

// weeklyLogsCollection は週次勤怠ドキュメントを保持するコレクション名。
const weeklyLogsCollection = "weekly_logs"

// MongoWeekLogRepo はMongoDBを使用した週次勤怠リポジトリ。
// 出勤の追記・退勤の更新はいずれも条件付きUpdateOne1回で行い、
// 同一ユーザーへの並行書き込みがあっても「オープンなセッションは
// 高々1件」の不変条件を崩さない。
type MongoWeekLogRepo struct {
	col *mongo.Collection
}

// NewMongoWeekLogRepo はMongoWeekLogRepoを生成する。
func NewMongoWeekLogRepo(db *mongo.Database) *MongoWeekLogRepo {
	return &MongoWeekLogRepo{col: db.Collection(weeklyLogsCollection)}
}

// EnsureIndexes はweek_startのユニークインデックスを作成する。
// 同一週のドキュメントが2件できると条件付き更新の前提が崩れるため、
// 起動時に必ず呼ぶこと。
func (r *MongoWeekLogRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "week_start", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create week_start index: %w", err)
	}
	return nil
}

// EnsureWeek は指定week_startの週ドキュメントを存在保証する。
// $setOnInsertのみのupsertなので、既存ドキュメントには一切触れない。
func (r *MongoWeekLogRepo) EnsureWeek(ctx context.Context, weekStart, weekEnd string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"week_start": weekStart},
		bson.M{"$setOnInsert": bson.M{
			"week_start": weekStart,
			"week_end":   weekEnd,
			"logs":       bson.M{},
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure week document: %w", err)
	}
	return nil
}

// SessionsFor は指定週・日・ユーザーのセッション列を返す。
// 週・日・ユーザーのいずれかが存在しない場合は空列を返す（エラーにはしない）。
// 形式が不正な要素は読み飛ばす。
func (r *MongoWeekLogRepo) SessionsFor(ctx context.Context, weekStart, day, username string) ([]model.Session, error) {
	path := sessionPath(day, username)

	var doc struct {
		Logs bson.Raw `bson:"logs"`
	}
	err := r.col.FindOne(ctx,
		bson.M{"week_start": weekStart},
		options.FindOne().SetProjection(bson.M{path: 1}),
	).Decode(&doc)

	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find week document: %w", err)
	}
	if len(doc.Logs) == 0 {
		return nil, nil
	}

	return decodeSessions(doc.Logs.Lookup(day, username)), nil
}

// AppendSession はオープンなセッションが存在しない場合に限り、
// 新しいセッションを1件追記する。
//
// 「オープンなセッションが存在しない」条件は$elemMatchの否定で表現し、
// 判定と$pushを単一のUpdateOneで行う。これにより、同一ユーザーの
// 並行サインインが両方とも追記される競合を閉じる（§並行性の規律）。
// upsertは使わない（週ドキュメントの作成はEnsureWeekのみが行う）ため、
// 条件不成立時に重複ドキュメントが生まれることはない。
func (r *MongoWeekLogRepo) AppendSession(ctx context.Context, weekStart, day, username string, signIn time.Time) error {
	path := sessionPath(day, username)

	res, err := r.col.UpdateOne(ctx,
		appendSessionFilter(weekStart, path),
		bson.M{"$push": bson.M{path: bson.M{"sign_in": signIn}}},
	)
	if err != nil {
		return fmt.Errorf("failed to append session: %w", err)
	}
	if res.MatchedCount == 0 {
		// 条件不成立には2通りある: オープンなセッションが既にあるか、
		// 週ドキュメント自体が無い（レポートジョブのパージと競合した）か。
		// 後者を「出勤中」と誤報しないよう、ドキュメントの存在で区別する。
		count, countErr := r.col.CountDocuments(ctx, bson.M{"week_start": weekStart})
		if countErr != nil {
			return fmt.Errorf("failed to check week document: %w", countErr)
		}
		if count == 0 {
			return ErrWeekNotFound
		}
		return ErrOpenSessionExists
	}
	return nil
}

// CloseLastOpenSession はオープンなセッションのうちインデックスが最大の
// 1件にのみsign_outを設定する。
//
// 元の実装はarrayFiltersの「sign_outが無い全要素」を対象にしており、
// データが壊れて複数のオープンセッションができた場合に過去の要素まで
// 閉じてしまう。ここでは集約パイプライン更新で末尾側の1要素だけを
// 書き換える。
func (r *MongoWeekLogRepo) CloseLastOpenSession(ctx context.Context, weekStart, day, username string, signOut time.Time) error {
	path := sessionPath(day, username)

	res, err := r.col.UpdateOne(ctx,
		closeSessionFilter(weekStart, path),
		closeLastOpenPipeline(path, signOut),
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNoOpenSession
	}
	return nil
}

// ListAll は保存されている全週ドキュメントをweek_start昇順で返す。
// 形式が不正なセッション要素は読み飛ばす（週次レポートを止めない）。
func (r *MongoWeekLogRepo) ListAll(ctx context.Context) ([]model.WeekDocument, error) {
	cursor, err := r.col.Find(ctx,
		bson.M{},
		options.Find().SetSort(bson.D{{Key: "week_start", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list week documents: %w", err)
	}
	defer cursor.Close(ctx)

	var weeks []model.WeekDocument
	for cursor.Next(ctx) {
		var raw struct {
			WeekStart string   `bson:"week_start"`
			WeekEnd   string   `bson:"week_end"`
			Logs      bson.Raw `bson:"logs"`
		}
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode week document: %w", err)
		}
		weeks = append(weeks, model.WeekDocument{
			WeekStart: raw.WeekStart,
			WeekEnd:   raw.WeekEnd,
			Logs:      decodeDayLogs(raw.Logs),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate week documents: %w", err)
	}

	return weeks, nil
}

// PurgeAll は全週ドキュメントを削除する。
func (r *MongoWeekLogRepo) PurgeAll(ctx context.Context) error {
	if _, err := r.col.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to purge week documents: %w", err)
	}
	return nil
}

// --- フィルタ/パイプライン構築 ---

// sessionPath はlogs以下の2階層キーパスを組み立てる。
// dayは"2006-01-02"形式、usernameは英数字・ハイフン・アンダースコアに
// 制限されているため、パス区切りのドットと衝突しない。
func sessionPath(day, username string) string {
	return "logs." + day + "." + username
}

// openSessionElem はオープンなセッション（sign_inがあり、sign_outが無い）
// にマッチする$elemMatch条件を返す。sign_inの存在を要求することで、
// 形式が不正な要素が誤ってオープン扱いされないようにする。
func openSessionElem() bson.M {
	return bson.M{
		"sign_in":  bson.M{"$exists": true},
		"sign_out": bson.M{"$exists": false},
	}
}

// appendSessionFilter は「指定週のドキュメントが存在し、かつ対象の
// セッション列にオープンな要素が無い」ことを表すフィルタを返す。
// 列自体が未作成の場合も$notは成立するため、$pushが中間の
// 日・ユーザーエントリごと作成する。
func appendSessionFilter(weekStart, path string) bson.M {
	return bson.M{
		"week_start": weekStart,
		path:         bson.M{"$not": bson.M{"$elemMatch": openSessionElem()}},
	}
}

// closeSessionFilter は「対象のセッション列にオープンな要素が存在する」
// ことを表すフィルタを返す。
func closeSessionFilter(weekStart, path string) bson.M {
	return bson.M{
		"week_start": weekStart,
		path:         bson.M{"$elemMatch": openSessionElem()},
	}
}

// exprSessionIsOpen は集約式の中で1要素がオープンかどうかを判定する。
// inputには要素を指す式（"$$s"など）を渡す。
func exprSessionIsOpen(input string) bson.M {
	return bson.M{"$and": bson.A{
		bson.M{"$ne": bson.A{
			bson.M{"$type": bson.M{"$getField": bson.M{"field": "sign_in", "input": input}}},
			"missing",
		}},
		bson.M{"$eq": bson.A{
			bson.M{"$type": bson.M{"$getField": bson.M{"field": "sign_out", "input": input}}},
			"missing",
		}},
	}}
}

// closeLastOpenPipeline はセッション列のうちオープンな要素の最大
// インデックス1件にのみsign_outをマージする更新パイプラインを返す。
//
// lastOpen = size - (reverseArrayでの最初のオープン位置 + 1)。
// オープンな要素が無い場合はlastOpen == sizeとなり、どの要素とも
// 一致しないため列は変化しない（フィルタ側で既に除外されている）。
func closeLastOpenPipeline(path string, signOut time.Time) bson.A {
	sessions := "$" + path

	openFlags := bson.M{"$map": bson.M{
		"input": "$$sessions",
		"as":    "s",
		"in":    exprSessionIsOpen("$$s"),
	}}

	lastOpenIndex := bson.M{"$subtract": bson.A{
		bson.M{"$size": "$$sessions"},
		bson.M{"$add": bson.A{
			bson.M{"$indexOfArray": bson.A{bson.M{"$reverseArray": openFlags}, true}},
			1,
		}},
	}}

	rewrite := bson.M{"$map": bson.M{
		"input": bson.M{"$range": bson.A{0, bson.M{"$size": "$$sessions"}}},
		"as":    "i",
		"in": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$$i", "$$lastOpen"}},
			bson.M{"$mergeObjects": bson.A{
				bson.M{"$arrayElemAt": bson.A{"$$sessions", "$$i"}},
				bson.M{"sign_out": signOut},
			}},
			bson.M{"$arrayElemAt": bson.A{"$$sessions", "$$i"}},
		}},
	}}

	return bson.A{
		bson.M{"$set": bson.M{path: bson.M{"$let": bson.M{
			"vars": bson.M{"sessions": bson.M{"$ifNull": bson.A{sessions, bson.A{}}}},
			"in": bson.M{"$let": bson.M{
				"vars": bson.M{"lastOpen": lastOpenIndex},
				"in":   rewrite,
			}},
		}}}},
	}
}

// --- 寛容な復号 ---

// decodeSessions はセッション列のBSON値をmodel.Sessionのスライスに復号する。
// 配列でない値、ドキュメントでない要素、sign_inを持たない要素は読み飛ばす。
// 勤怠の参照系は壊れたデータでも落ちてはならない（不正な形式は
// 「出勤記録なし」として扱う）。
func decodeSessions(val bson.RawValue) []model.Session {
	arr, ok := val.ArrayOK()
	if !ok {
		return nil
	}
	values, err := arr.Values()
	if err != nil {
		return nil
	}

	var sessions []model.Session
	for _, v := range values {
		doc, ok := v.DocumentOK()
		if !ok {
			continue
		}
		var s model.Session
		if err := bson.Unmarshal(doc, &s); err != nil {
			continue
		}
		if s.SignIn.IsZero() {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions
}

// decodeDayLogs はlogsフィールド全体を寛容に復号する。
func decodeDayLogs(raw bson.Raw) model.DayLogs {
	logs := model.DayLogs{}
	if len(raw) == 0 {
		return logs
	}
	dayElems, err := raw.Elements()
	if err != nil {
		return logs
	}
	for _, dayElem := range dayElems {
		usersDoc, ok := dayElem.Value().DocumentOK()
		if !ok {
			continue
		}
		userElems, err := usersDoc.Elements()
		if err != nil {
			continue
		}
		users := map[string][]model.Session{}
		for _, userElem := range userElems {
			if sessions := decodeSessions(userElem.Value()); sessions != nil {
				users[userElem.Key()] = sessions
			}
		}
		if len(users) > 0 {
			logs[dayElem.Key()] = users
		}
	}
	return logs
}

// compile-time interface check
var _ WeekLogRepository = (*MongoWeekLogRepo)(nil)
