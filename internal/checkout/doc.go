// Package checkout は注文作成から決済、配送完了までの流れを組み立てる。
//
// 注文と決済トランザクションの状態はすべてコマースバックエンドが所有する。
// このパッケージは入力を検証してバックエンドへ中継し、返ってきた
// 不揃いなJSONを Order や Verification に正規化するだけで、状態を保持しない。
//
//	[注文なし] --CreateOrder--> Order{unpaid, pending}
//	Order{unpaid} --InitPayment--> PaymentInit{reference, redirectUrl}
//	PaymentInit --VerifyPayment--> Verification{success|failed|error}
//	Order{paid} --MarkDelivered--> Order{delivered}
package checkout
