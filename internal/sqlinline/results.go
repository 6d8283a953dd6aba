package sqlinline

const QUpsertNutritionResult = `--sql 3c5b2f0e-9a41-4d6e-8f17-b2c9e4a0d5f1
insert into nutrition_results (
  dish_id,
  mode,
  run_id,
  model,
  payload,
  total_calories,
  total_carbohydrates,
  elapsed_seconds,
  created_at,
  updated_at
) values (
  $1::text,
  $2::text,
  $3::uuid,
  $4::text,
  $5::jsonb,
  $6::int,
  $7::int,
  $8::double precision,
  now(),
  now()
)
on conflict (dish_id, mode) do update set
  run_id = excluded.run_id,
  model = excluded.model,
  payload = excluded.payload,
  total_calories = excluded.total_calories,
  total_carbohydrates = excluded.total_carbohydrates,
  elapsed_seconds = excluded.elapsed_seconds,
  updated_at = now();
`

const QDeleteNutritionResult = `--sql 7e0d94a3-61c8-4b25-a3f9-0c4e8d17b6a2
delete from nutrition_results
where dish_id = $1::text and mode = $2::text;
`

const QCreateNutritionResults = `--sql acba3441-b04c-4bc7-8b88-fed0bf80b6c6
create table if not exists nutrition_results (
  dish_id text not null,
  mode text not null,
  run_id uuid not null,
  model text not null default '',
  payload jsonb not null,
  total_calories int not null,
  total_carbohydrates int not null,
  elapsed_seconds double precision not null,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now(),
  primary key (dish_id, mode)
);
`
