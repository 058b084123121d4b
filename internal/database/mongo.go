package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo はMongoDBに接続し、到達性を確認したクライアントを返す。
// クライアントの寿命は呼び出し側が管理する（プロセス起動時に接続し、
// シャットダウン時にDisconnectMongoで閉じる）。パッケージレベルの
// シングルトンは持たない。
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		// Pingに失敗した接続は残さない
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb is not reachable: %w", err)
	}

	return client, nil
}

// DisconnectMongo はMongoDBクライアントを閉じる。
// シャットダウンパスから呼ばれるため、タイムアウトを内部で設定する。
func DisconnectMongo(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
